package admin

import (
	"encoding/json"
)

// mergePatch applies a JSON merge patch (RFC 7386) to target
func mergePatch(target, patch json.RawMessage) (json.RawMessage, error) {
	var patchValue interface{}
	if err := json.Unmarshal(patch, &patchValue); err != nil {
		return nil, err
	}
	var targetValue interface{}
	if len(target) > 0 {
		if err := json.Unmarshal(target, &targetValue); err != nil {
			return nil, err
		}
	}
	return json.Marshal(mergeValue(targetValue, patchValue))
}

func mergeValue(target, patch interface{}) interface{} {
	patchObj, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}
	targetObj, ok := target.(map[string]interface{})
	if !ok {
		targetObj = map[string]interface{}{}
	}
	for key, value := range patchObj {
		if value == nil {
			delete(targetObj, key)
			continue
		}
		targetObj[key] = mergeValue(targetObj[key], value)
	}
	return targetObj
}
