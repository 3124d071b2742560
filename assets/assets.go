package assets

import _ "embed"

// DefaultDataset is the bundled snapshot used when nothing has been
// persisted yet and by reset.
//
//go:embed database.json
var DefaultDataset []byte
