// Package extract turns narrative text into an ordered sequence of
// numeric claims.
//
// The extractor is an explicit one-pass tokenizer, not a regex engine:
// the scanner walks the text exactly once producing word and number
// tokens, and every secondary search (citation prefix, reference id,
// currency words) runs over an explicitly bounded window. Extraction is
// a pure function of (text, rules): same input, identical claim
// sequence, byte for byte.
//
// Sentence and bullet-line segmentation live here too because the
// citation and math layers reuse the same boundaries the extractor saw.
package extract
