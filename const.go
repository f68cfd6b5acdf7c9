package query

const (
	vspaceSpID = 281 // _vspace
	vindexSpID = 289 // _vindex

	// Catalog index ids. Both system spaces keep the primary key at 0 and
	// the name-based key at 2.
	catalogPrimaryIndex = 0
	catalogNameIndex    = 2

	// Positions inside _vspace and _vindex tuples.
	vspaceIDField        = 0
	vspaceNameField      = 2
	vindexIDField        = 1
	vindexNameField      = 2
	vindexOptsField      = 4
	unlimited            = 0xFFFFFFFF
	defaultMaxFieldWidth = 128
)

// encodeInvalidAsNilExpr instructs the server msgpack serializer to encode
// values it can not represent (functions, userdata, cdata) as nil.
const encodeInvalidAsNilExpr = "require('msgpack').cfg{encode_invalid_as_nil = true}"

// Lua bodies used to rewrite a select into server-side index methods.
// Arguments are passed positionally: space id, index id, key, extra.
const (
	getExpr    = "local s, i, k = ...; return box.space[s].index[i]:get(k)"
	countExpr  = "local s, i, k, it = ...; return box.space[s].index[i]:count(k, {iterator = it})"
	maxExpr    = "local s, i, k = ...; return box.space[s].index[i]:max(k)"
	minExpr    = "local s, i, k = ...; return box.space[s].index[i]:min(k)"
	randomExpr = "local s, i, seed = ...; return box.space[s].index[i]:random(seed)"
)
