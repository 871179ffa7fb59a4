// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

// OBU is a single Open Bitstream Unit: a header plus its payload.
type OBU struct {
	Header  Header
	Payload []byte
}

// Marshal encodes the OBU header, its extension header (if present), an
// obu_size LEB128 field (if Header.HasSizeField is set), and the payload.
func (o OBU) Marshal() []byte {
	out := o.Header.Marshal()

	if o.Header.HasSizeField {
		out = AppendUleb128(out, uint(len(o.Payload)))
	}

	return append(out, o.Payload...)
}
