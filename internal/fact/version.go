package fact

// PackVersion identifies the audit pack layout and manifest shape.
// Bump only on breaking changes to either.
const PackVersion = "1"

// EngineVersion identifies this verification engine build. Recorded in
// manifest metadata so packs name the code that produced them.
const EngineVersion = "0.1.0"
