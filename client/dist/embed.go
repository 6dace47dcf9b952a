package clientdist

import _ "embed"

// IncppectJS is the browser-side decoder script.
//
// It is served by the transport at "/incppect.js".
//go:embed incppect.js
var IncppectJS []byte
