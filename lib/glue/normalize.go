// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package glue

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextNormalizer cleans raw TSV fields before tokenization.
type TextNormalizer struct {
	// DoLowerCase lowercases text. Leave it unset for tokenizers that
	// lowercase on their own, such as WordPiece.
	DoLowerCase bool
	// UseSentencePiece selects SentencePiece-style preprocessing: collapsed
	// whitespace, `` and '' rewritten to ", and accents stripped.
	UseSentencePiece bool
}

// Normalize returns the cleaned form of s. Invalid UTF-8 is always dropped.
func (n TextNormalizer) Normalize(s string) string {
	s = strings.ToValidUTF8(s, "")
	if !n.UseSentencePiece {
		if n.DoLowerCase {
			s = strings.ToLower(s)
		}
		return s
	}

	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "``", `"`)
	s = strings.ReplaceAll(s, "''", `"`)
	s = stripAccents(s)
	if n.DoLowerCase {
		s = strings.ToLower(s)
	}
	return s
}

func isCombining(r rune) bool {
	if !unicode.Is(unicode.M, r) {
		return false
	}
	return norm.NFKD.PropertiesString(string(r)).CCC() != 0
}

// stripAccents decomposes s with NFKD and drops combining marks.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(isCombining)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
