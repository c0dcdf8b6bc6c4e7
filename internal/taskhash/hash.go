// Package taskhash computes a content hash over a set of task manifests and
// their test files, so two runs can be declared comparable.
package taskhash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// normalizeLF normalizes line endings to LF so the hash is stable across
// checkouts with different line-ending settings.
func normalizeLF(b []byte) []byte {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}

// hashTask hashes one task's manifest bytes concatenated with its test
// files' bytes, sorted by path.
func hashTask(task model.TaskManifest) string {
	h := sha256.New()
	manifestBytes := manifestCanonicalBytes(task)
	h.Write(normalizeLF(manifestBytes))

	files := make([]model.TestFile, len(task.TestFiles))
	copy(files, task.TestFiles)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write(normalizeLF(f.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// manifestCanonicalBytes serializes the fields of a task manifest that
// define its identity (excluding runtime-only metadata) into a stable byte
// sequence.
func manifestCanonicalBytes(task model.TaskManifest) []byte {
	var b strings.Builder
	b.WriteString(task.ID)
	b.WriteString("\n")
	b.WriteString(task.Description)
	b.WriteString("\n")
	b.WriteString(task.GeneratePrompt)
	b.WriteString("\n")
	b.WriteString(task.RepairPrompt)
	b.WriteString("\n")
	required := append([]string(nil), task.RequiredPatterns...)
	sort.Strings(required)
	b.WriteString(strings.Join(required, ","))
	b.WriteString("\n")
	forbidden := append([]string(nil), task.ForbiddenPatterns...)
	sort.Strings(forbidden)
	b.WriteString(strings.Join(forbidden, ","))
	return []byte(b.String())
}

// ComputeTaskSet hashes every task in the set, sorted by task ID for
// determinism, together with harnessManifest (the shared test-harness
// manifest digest). The resulting string identifies the task set: two runs
// with matching hashes are declared comparable.
func ComputeTaskSet(tasks []model.TaskManifest, harnessManifest []byte) string {
	sorted := make([]model.TaskManifest, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, task := range sorted {
		h.Write([]byte(hashTask(task)))
	}

	harnessDigest := sha256.Sum256(normalizeLF(harnessManifest))
	h.Write(harnessDigest[:])

	return hex.EncodeToString(h.Sum(nil))
}
