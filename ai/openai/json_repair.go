// Copyright 2025 Poiesic Systems
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


package openai

import "strings"

// stripFences removes a surrounding markdown code fence and any prose before
// the first '{' or after the last '}'.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if start := strings.IndexByte(s, '{'); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexByte(s, '}'); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}

// repairJSON fixes the formatting mistakes small chat models make most often:
// keys missing one or both quotes, and trailing commas before a closing
// bracket. Text inside string literals is never changed.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)
	inString := false

	for i := 0; i < len(in); i++ {
		ch := in[i]

		if inString {
			out = append(out, ch)
			if ch == '\\' && i+1 < len(in) {
				i++
				out = append(out, in[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			out = append(out, ch)
		case ',':
			// Drop a comma that only precedes whitespace and a closer
			j := i + 1
			for j < len(in) && isSpace(in[j]) {
				j++
			}
			if j < len(in) && (in[j] == '}' || in[j] == ']') {
				continue
			}
			out = append(out, ch)
			out, i = quoteKey(in, out, i)
		case '{':
			out = append(out, ch)
			out, i = quoteKey(in, out, i)
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

// quoteKey looks past in[i] for an unquoted key followed by a colon, with or
// without a closing quote, and writes it quoted. It returns the index of the
// last rune consumed.
func quoteKey(in, out []rune, i int) ([]rune, int) {
	j := i + 1
	for j < len(in) && isSpace(in[j]) {
		j++
	}
	start := j
	for j < len(in) && isKeyRune(in[j]) {
		j++
	}
	if j == start {
		return out, i
	}
	end := j
	if j < len(in) && in[j] == '"' {
		j++
	}
	if j >= len(in) || in[j] != ':' {
		return out, i
	}

	out = append(out, in[i+1:start]...)
	out = append(out, '"')
	out = append(out, in[start:end]...)
	out = append(out, '"')
	return out, j - 1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
