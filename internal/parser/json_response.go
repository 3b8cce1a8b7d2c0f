package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// errMalformedJSON 模型输出无法解释为 JSON 对象
var errMalformedJSON = errors.New("模型输出不是有效的JSON")

// decodeModelJSON 把模型回复解码到 v。
// 依次尝试：去掉代码块标记后直接解析、截取第一个完整的 {...} 对象、修复未转义的引号，
// 全部失败时返回包装了 errMalformedJSON 的错误。
func decodeModelJSON(raw string, v any) error {
	content := stripCodeFences(raw)
	if content == "" {
		return fmt.Errorf("%w: 回复为空", errMalformedJSON)
	}

	firstErr := json.Unmarshal([]byte(content), v)
	if firstErr == nil {
		return nil
	}

	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		return fmt.Errorf("%w: %v", errMalformedJSON, firstErr)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	// ① 正常解析
	if err := json.Unmarshal([]byte(jsonStr), v); err == nil {
		return nil
	}
	// ② 解析失败 -> 自动修复再试一次
	if err := json.Unmarshal([]byte(sanitizeJSON(jsonStr)), v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedJSON, err)
	}
	return nil
}

// stripCodeFences 去掉 BOM、首尾空白以及 ```json / ``` 代码块标记
func stripCodeFences(text string) string {
	content := strings.TrimSpace(strings.TrimPrefix(text, "\uFEFF"))
	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	} else if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// extractJSONObject 截取文本中第一个括号配平的 JSON 对象，忽略字符串字面量内的括号
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 会遍历 src，将任何位于字符串字面量内部但并非"真正结束"的双引号写成 \",
// 以保证整个 JSON 在 Go 端能够正常反序列化。
// 它通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}

// truncateRunes 按字符（而非字节）截断
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
