package indexer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// BuiltinMimetypeDetector detects mimetypes from content sniffing, without
// an external libmagic dependency.
type BuiltinMimetypeDetector struct{}

func (BuiltinMimetypeDetector) Detect(data []byte) (string, string, error) {
	mimetype := http.DetectContentType(data)
	// Strip the charset parameter; encoding is reported separately.
	if idx := strings.Index(mimetype, ";"); idx >= 0 {
		mimetype = strings.TrimSpace(mimetype[:idx])
	}

	encoding := "binary"
	if utf8.Valid(data) {
		encoding = "us-ascii"
		for _, b := range data {
			if b > 0x7f {
				encoding = "utf-8"
				break
			}
		}
	}
	return mimetype, encoding, nil
}

// shebangLanguages maps interpreter names to language identifiers.
var shebangLanguages = map[string]string{
	"python":  "python",
	"python3": "python",
	"perl":    "perl",
	"ruby":    "ruby",
	"bash":    "shell",
	"sh":      "shell",
	"zsh":     "shell",
	"node":    "javascript",
	"env":     "", // resolved from the argument after env
}

// BuiltinLanguageDetector recognizes languages from shebang lines. Content
// without a recognizable shebang is reported as undetected, which the
// indexer treats as a skip.
type BuiltinLanguageDetector struct{}

func (BuiltinLanguageDetector) DetectLanguage(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte("#!")) {
		return "", fmt.Errorf("no shebang, language undetected")
	}
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	fields := strings.Fields(string(line[2:]))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty shebang")
	}

	interp := fields[0]
	if idx := strings.LastIndexByte(interp, '/'); idx >= 0 {
		interp = interp[idx+1:]
	}
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	// Normalize versioned interpreters (python3.12, ruby2.7).
	base := strings.TrimRightFunc(interp, func(r rune) bool {
		return r == '.' || (r >= '0' && r <= '9')
	})
	if lang, ok := shebangLanguages[base]; ok && lang != "" {
		return lang, nil
	}
	return "", fmt.Errorf("unrecognized interpreter %q", interp)
}

// SPDXScanner extracts SPDX-License-Identifier declarations from content.
type SPDXScanner struct{}

const spdxTag = "SPDX-License-Identifier:"

func (SPDXScanner) Scan(data []byte) ([]string, error) {
	seen := make(map[string]bool)
	var licenses []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, spdxTag)
		if idx < 0 {
			continue
		}
		expr := strings.TrimSpace(line[idx+len(spdxTag):])
		// Strip trailing comment markers.
		expr = strings.TrimRight(expr, "*/- \t")
		if expr == "" {
			continue
		}
		for _, id := range strings.FieldsFunc(expr, func(r rune) bool {
			return r == ' ' || r == '(' || r == ')'
		}) {
			if id == "OR" || id == "AND" || id == "WITH" {
				continue
			}
			if !seen[id] {
				seen[id] = true
				licenses = append(licenses, id)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return licenses, nil
}

// NPMTranslator translates package.json manifests into a flat metadata
// document with the common vocabulary fields.
type NPMTranslator struct{}

func (NPMTranslator) Translate(data []byte) (json.RawMessage, error) {
	var manifest struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		License     any    `json:"license"`
		Homepage    string `json:"homepage"`
		Author      any    `json:"author"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("not a JSON manifest: %w", err)
	}
	if manifest.Name == "" {
		return nil, fmt.Errorf("manifest has no name")
	}

	doc := map[string]any{"name": manifest.Name}
	if manifest.Version != "" {
		doc["version"] = manifest.Version
	}
	if manifest.Description != "" {
		doc["description"] = manifest.Description
	}
	if manifest.Homepage != "" {
		doc["url"] = manifest.Homepage
	}
	if s, ok := manifest.License.(string); ok && s != "" {
		doc["license"] = s
	}
	switch a := manifest.Author.(type) {
	case string:
		if a != "" {
			doc["author"] = a
		}
	case map[string]any:
		if name, ok := a["name"].(string); ok && name != "" {
			doc["author"] = name
		}
	}
	return json.Marshal(doc)
}

// CtagsCommand extracts symbols by shelling out to universal-ctags with
// JSON output, the same contract the hosted pipeline uses.
type CtagsCommand struct {
	// Binary is the ctags executable. Empty means "ctags" on PATH.
	Binary string
}

func (c CtagsCommand) Extract(data []byte) ([]Symbol, error) {
	binary := c.Binary
	if binary == "" {
		binary = "ctags"
	}

	tmp, err := os.CreateTemp("", "indexd-ctags-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	out, err := exec.Command(binary,
		"--sort=no", "--links=no", "--output-format=json",
		"--fields={line}{name}{language}{kind}",
		tmp.Name()).Output()
	if err != nil {
		return nil, fmt.Errorf("ctags failed: %w", err)
	}

	var symbols []Symbol
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var tag struct {
			Type     string `json:"_type"`
			Name     string `json:"name"`
			Kind     string `json:"kind"`
			Line     int64  `json:"line"`
			Language string `json:"language"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &tag); err != nil {
			continue
		}
		if tag.Type != "tag" || tag.Name == "" {
			continue
		}
		symbols = append(symbols, Symbol{
			Name: tag.Name,
			Kind: tag.Kind,
			Line: tag.Line,
			Lang: tag.Language,
		})
	}
	return symbols, scanner.Err()
}
