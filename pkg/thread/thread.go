// Package thread derives the correlation key (§3.5) and test-case name
// (§3.6) for a message body. Both functions are pure: identical inputs
// always yield identical outputs.
package thread

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

var testCaseNameRe = regexp.MustCompile(`^\S+\.\S+\.\S+$`)

func nestedString(body map[string]interface{}, keys ...string) string {
	var cur interface{} = body
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur, ok = m[k]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// versionAtLeast reports whether version's major.minor is >= want's,
// comparing numerically rather than lexically ("0.10" > "0.2").
func versionAtLeast(version, want string) bool {
	vParts := strings.SplitN(version, ".", 3)
	wParts := strings.SplitN(want, ".", 3)
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	for i := 0; i < 2; i++ {
		var v, w int
		if i < len(vParts) {
			v = num(vParts[i])
		}
		if i < len(wParts) {
			w = num(wParts[i])
		}
		if v != w {
			return v > w
		}
	}
	return true
}

// TestCaseName derives "namespace.type.category" for a test-stage message
// (§3.6). It reads body.test.{namespace,type,category} when version >= 0.2,
// else the top-level body.{namespace,type,category} fields.
func TestCaseName(body map[string]interface{}, version string) (string, error) {
	const op = "thread.TestCaseName"
	var ns, typ, cat string
	if versionAtLeast(version, "0.2") {
		ns = nestedString(body, "test", "namespace")
		typ = nestedString(body, "test", "type")
		cat = nestedString(body, "test", "category")
	} else {
		ns = nestedString(body, "namespace")
		typ = nestedString(body, "type")
		cat = nestedString(body, "category")
	}
	name := ns + "." + typ + "." + cat
	if !testCaseNameRe.MatchString(name) {
		return "", kaierrors.ValidationError(op, nil, "test case name %q does not match required shape", name)
	}
	return name, nil
}

// DeriveThreadID derives the correlation key for an envelope body, per §3.5:
// body.pipeline.id if present and non-empty, else body.thread_id, else a
// SHA256-derived dummy id seeded on run.url (and, in the test stage, the
// test case name too). Returns NoThreadIdError if no anchor can be formed.
func DeriveThreadID(body map[string]interface{}, stage, version string) (string, error) {
	const op = "thread.DeriveThreadID"

	if id := nestedString(body, "pipeline", "id"); id != "" {
		return id, nil
	}
	if id, ok := body["thread_id"].(string); ok && id != "" {
		return id, nil
	}

	runURL := nestedString(body, "run", "url")
	if runURL == "" {
		return "", kaierrors.NoThreadIdError(op, "no pipeline.id, thread_id, or run.url present")
	}

	seed := runURL
	if stage == "test" {
		if tcn, err := TestCaseName(body, version); err == nil && tcn != "" {
			seed = runURL + "~" + tcn
		}
	}
	sum := sha256.Sum256([]byte(seed))
	return "dummy-thread-" + hex.EncodeToString(sum[:]), nil
}
