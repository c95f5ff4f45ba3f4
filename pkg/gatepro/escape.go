// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"fmt"
	"strings"
)

// Escape converts raw bytes into the printable text form used for framing.
// Control codes with a conventional escape get it (`\r`, `\n`, ...), any other
// byte outside 32-127 becomes `\xHH`, everything else is copied as is.
func Escape(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if s, ok := conversionMap[b]; ok {
			sb.WriteString(s)
		} else if b < 32 || b > 127 {
			fmt.Fprintf(&sb, `\x%02X`, b)
		} else {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}
