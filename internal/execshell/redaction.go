package execshell

import (
	"io"
	"sort"
	"strings"
	"sync"
)

// RedactionMask replaces secrets in transcripts and streamed output.
const RedactionMask = "********"

// Redactor masks a fixed set of secrets.
type Redactor struct {
	secrets []string
}

// NewRedactor builds a Redactor ignoring empty secrets; longer secrets are replaced first.
func NewRedactor(secrets []string) Redactor {
	filteredSecrets := make([]string, 0, len(secrets))
	seen := make(map[string]struct{}, len(secrets))
	for _, secret := range secrets {
		if len(secret) == 0 {
			continue
		}
		if _, duplicate := seen[secret]; duplicate {
			continue
		}
		seen[secret] = struct{}{}
		filteredSecrets = append(filteredSecrets, secret)
	}
	sort.SliceStable(filteredSecrets, func(leftIndex int, rightIndex int) bool {
		return len(filteredSecrets[leftIndex]) > len(filteredSecrets[rightIndex])
	})
	return Redactor{secrets: filteredSecrets}
}

// Redact returns text with every secret masked.
func (redactor Redactor) Redact(text string) string {
	for _, secret := range redactor.secrets {
		text = strings.ReplaceAll(text, secret, RedactionMask)
	}
	return text
}

func (redactor Redactor) longestSecretLength() int {
	if len(redactor.secrets) == 0 {
		return 0
	}
	return len(redactor.secrets[0])
}

// RedactingWriter masks secrets in a byte stream before forwarding it.
// It holds back a tail shorter than the longest secret so secrets split across writes are still masked.
type RedactingWriter struct {
	target   io.Writer
	redactor Redactor
	pending  []byte
	mutex    sync.Mutex
}

// NewRedactingWriter wraps target with redaction for the provided redactor.
func NewRedactingWriter(target io.Writer, redactor Redactor) *RedactingWriter {
	if target == nil {
		target = io.Discard
	}
	return &RedactingWriter{target: target, redactor: redactor}
}

// Write buffers data and forwards every byte that can no longer be part of a secret.
func (writer *RedactingWriter) Write(data []byte) (int, error) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	writer.pending = append(writer.pending, data...)
	holdBack := writer.redactor.longestSecretLength() - 1
	if holdBack < 0 {
		holdBack = 0
	}

	cutIndex := len(writer.pending) - holdBack
	if cutIndex <= 0 {
		return len(data), nil
	}

	pendingText := string(writer.pending)
	cutIndex = writer.adjustCutIndex(pendingText, cutIndex)
	if cutIndex <= 0 {
		return len(data), nil
	}

	if _, writeError := io.WriteString(writer.target, writer.redactor.Redact(pendingText[:cutIndex])); writeError != nil {
		return 0, writeError
	}
	writer.pending = append([]byte{}, writer.pending[cutIndex:]...)
	return len(data), nil
}

// Flush forwards any held-back bytes.
func (writer *RedactingWriter) Flush() error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	if len(writer.pending) == 0 {
		return nil
	}
	_, writeError := io.WriteString(writer.target, writer.redactor.Redact(string(writer.pending)))
	writer.pending = nil
	return writeError
}

// adjustCutIndex moves the cut before any secret occurrence that straddles it.
func (writer *RedactingWriter) adjustCutIndex(pendingText string, cutIndex int) int {
	for {
		adjustedCutIndex := cutIndex
		for _, secret := range writer.redactor.secrets {
			searchOffset := 0
			for {
				occurrence := strings.Index(pendingText[searchOffset:], secret)
				if occurrence < 0 {
					break
				}
				start := searchOffset + occurrence
				end := start + len(secret)
				if start < adjustedCutIndex && adjustedCutIndex < end {
					adjustedCutIndex = start
				}
				searchOffset = end
			}
		}
		if adjustedCutIndex == cutIndex {
			return cutIndex
		}
		cutIndex = adjustedCutIndex
	}
}
