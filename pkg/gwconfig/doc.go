// Package gwconfig owns the gateway's two independent configuration
// surfaces: a YAML file of runtime-tunable knobs (rate limits,
// timeouts, compaction thresholds, metrics/logging settings) loaded
// once at startup, and a JSON file of persisted credential records
// ({id, name, token_path, enabled}) that is watched for changes and
// hot-reloaded into the running credential pool.
//
// The YAML side follows the layering convention of the teacher's
// config package: ApplyDefaults, then Validate, then Load composes
// them. The JSON side has no defaults/validation layer of its own —
// it is a flat admin-maintained list, rewritten on every credential
// mutation per the persisted-state contract.
package gwconfig
