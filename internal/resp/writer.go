package resp

import "strconv"

// AppendArrayHeader appends a RESP multi-bulk array header, "*<n>\r\n".
// Grounded on the Append-style wire helpers used for RESP encoding
// throughout the example pack (e.g. tidwall-redcon's AppendArray/AppendBulk
// family); generalized here to client-side request framing rather than
// server replies.
func AppendArrayHeader(buf []byte, n int) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(n), 10)
	return append(buf, '\r', '\n')
}

// AppendBulkHeader appends a bulk-string length header, "$<n>\r\n", without
// the payload. Callers needing to avoid copying a binary payload write the
// header, the payload, and AppendCRLF as three separate writes.
func AppendBulkHeader(buf []byte, n int) []byte {
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(n), 10)
	return append(buf, '\r', '\n')
}

// AppendBulkString appends a complete bulk string, header, payload and
// trailing CRLF included.
func AppendBulkString(buf []byte, s string) []byte {
	buf = AppendBulkHeader(buf, len(s))
	buf = append(buf, s...)
	return append(buf, '\r', '\n')
}

// AppendBulkBytes appends a complete bulk string for a binary payload.
func AppendBulkBytes(buf []byte, b []byte) []byte {
	buf = AppendBulkHeader(buf, len(b))
	buf = append(buf, b...)
	return append(buf, '\r', '\n')
}

// AppendCRLF appends a trailing terminator, used after writing a binary
// bulk payload verbatim.
func AppendCRLF(buf []byte) []byte {
	return append(buf, '\r', '\n')
}
