package resource

import (
	"fmt"

	"github.com/nghyane/query-gateway/internal/json"
)

// MergePatch applies an RFC 7386 merge patch to doc.
func MergePatch(doc, patch []byte) ([]byte, error) {
	var target any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &target); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	var p any
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return json.Marshal(mergeValue(target, p))
}

func mergeValue(target, patch any) any {
	patchObj, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	targetObj, ok := target.(map[string]any)
	if !ok {
		targetObj = make(map[string]any, len(patchObj))
	}
	for k, v := range patchObj {
		if v == nil {
			delete(targetObj, k)
			continue
		}
		targetObj[k] = mergeValue(targetObj[k], v)
	}
	return targetObj
}
