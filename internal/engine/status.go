package engine

// HeaderPreset identifies one of the three frozen content-type presets
// used for the zero-copy header fast path, or a custom header set.
type HeaderPreset int

const (
	PresetCustom HeaderPreset = iota
	PresetTextPlain
	PresetJSON
	PresetOctetStream
)

// presetContentType holds the canonical string for each frozen preset.
var presetContentType = map[HeaderPreset]string{
	PresetTextPlain:   "text/plain; charset=utf-8",
	PresetJSON:        "application/json; charset=utf-8",
	PresetOctetStream: "application/octet-stream",
}

// ContentType returns the content-type string for a preset, or "" for
// PresetCustom (the caller supplies its own headers in that case).
func (p HeaderPreset) ContentType() string {
	return presetContentType[p]
}

// statusTable holds the canonical "<code> <reason>" status lines named by
// spec §6 ("Status mapping"). Unknown codes fall back to 500.
var statusTable = map[int]string{
	100: "100 Continue",
	101: "101 Switching Protocols",
	102: "102 Processing",
	200: "200 OK",
	201: "201 Created",
	202: "202 Accepted",
	203: "203 Non-Authoritative Information",
	204: "204 No Content",
	205: "205 Reset Content",
	206: "206 Partial Content",
	300: "300 Multiple Choices",
	301: "301 Moved Permanently",
	302: "302 Found",
	303: "303 See Other",
	304: "304 Not Modified",
	305: "305 Use Proxy",
	307: "307 Temporary Redirect",
	308: "308 Permanent Redirect",
	400: "400 Bad Request",
	401: "401 Unauthorized",
	402: "402 Payment Required",
	403: "403 Forbidden",
	404: "404 Not Found",
	405: "405 Method Not Allowed",
	406: "406 Not Acceptable",
	407: "407 Proxy Authentication Required",
	408: "408 Request Timeout",
	409: "409 Conflict",
	410: "410 Gone",
	411: "411 Length Required",
	412: "412 Precondition Failed",
	413: "413 Payload Too Large",
	414: "414 URI Too Long",
	415: "415 Unsupported Media Type",
	418: "418 I'm a teapot",
	422: "422 Unprocessable Entity",
	429: "429 Too Many Requests",
	500: "500 Internal Server Error",
	501: "501 Not Implemented",
	502: "502 Bad Gateway",
	503: "503 Service Unavailable",
	504: "504 Gateway Timeout",
}

// StatusLine returns the canonical "<code> <reason>" string for code,
// falling back to the 500 line for anything not in the table.
func StatusLine(code int) string {
	if line, ok := statusTable[code]; ok {
		return line
	}
	return statusTable[500]
}
