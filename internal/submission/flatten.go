package submission

import (
	"sort"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// validationStatusKey is where the backend reports review state
const validationStatusKey = "_validation_status"

// Flatten reduces a raw submission to trailing leaf keys. Keys are visited
// in sorted order and the first non-empty value for a leaf wins, so the
// result is deterministic even when groups share a field name. Nested
// objects and repeat-group arrays are walked; arrays of scalars are dropped.
func Flatten(raw map[string]any) model.Submission {
	out := make(model.Submission, len(raw))
	flattenInto(out, raw)
	return out
}

func flattenInto(out model.Submission, raw map[string]any) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := raw[k]
		leaf := leafKey(k)

		if leaf == validationStatusKey {
			if vs, ok := decodeValidationStatus(v); ok {
				setLeaf(out, leaf, vs)
			}
			continue
		}

		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					flattenInto(out, m)
				}
			}
		default:
			setLeaf(out, leaf, val)
		}
	}
}

func setLeaf(out model.Submission, leaf string, val any) {
	if leaf == "" || val == nil {
		return
	}
	if _, filled := out.Lookup(leaf); filled {
		return
	}
	out[leaf] = val
}

func leafKey(k string) string {
	if i := strings.LastIndex(k, "/"); i >= 0 {
		return k[i+1:]
	}
	return k
}

func decodeValidationStatus(v any) (model.ValidationStatus, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return model.ValidationStatus{}, false
	}
	vs := model.ValidationStatus{}
	vs.UID, _ = m["uid"].(string)
	vs.Label, _ = m["label"].(string)
	if vs.UID == "" && vs.Label == "" {
		return vs, false
	}
	return vs, true
}

// ExpandSelections adds one key per chosen option of each multi-select
// question so that "group/option" rules can match. The backend stores a
// multi-select answer as a space-separated list under the question key;
// option o becomes key o with value o. Existing keys are never overwritten.
// sub is not modified; a copy is returned.
func ExpandSelections(sub model.Submission, groupKeys []string) model.Submission {
	out := make(model.Submission, len(sub))
	for k, v := range sub {
		out[k] = v
	}

	for _, g := range groupKeys {
		answer, ok := sub.Lookup(leafKey(g))
		if !ok {
			continue
		}
		for _, option := range strings.Fields(answer) {
			if _, exists := out[option]; !exists {
				out[option] = option
			}
		}
	}

	return out
}
