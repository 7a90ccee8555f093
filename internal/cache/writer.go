package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WriteMode 描述一次静态写入相对于磁盘现状的分类。
type WriteMode string

const (
	// WriteAdd 表示条目尚不存在。
	WriteAdd WriteMode = "add"
	// WriteUpdate 表示条目存在且内容发生变化。
	WriteUpdate WriteMode = "update"
	// WriteUnchanged 表示条目存在且忽略字段之外的内容完全一致，无需落盘。
	WriteUnchanged WriteMode = "unchanged"
)

// Classify 比较磁盘上的 existing 与即将写入的 incoming，ignoreKeys 中的字段（JSON 名称，
// 例如 "created"）不参与比较。existing 为 nil 时恒为 WriteAdd。
func Classify(existing, incoming *Object, ignoreKeys []string) (WriteMode, error) {
	if existing == nil {
		return WriteAdd, nil
	}
	if incoming == nil {
		return "", fmt.Errorf("incoming object required")
	}

	left, err := comparableFields(existing, ignoreKeys)
	if err != nil {
		return "", err
	}
	right, err := comparableFields(incoming, ignoreKeys)
	if err != nil {
		return "", err
	}

	if len(left) != len(right) {
		return WriteUpdate, nil
	}
	for key, lv := range left {
		rv, ok := right[key]
		if !ok || !sameJSON(lv, rv) {
			return WriteUpdate, nil
		}
	}
	return WriteUnchanged, nil
}

func comparableFields(obj *Object, ignoreKeys []string) (map[string]json.RawMessage, error) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode cache object: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("decode cache object: %w", err)
	}
	for _, key := range ignoreKeys {
		if key == "" {
			continue
		}
		delete(fields, key)
	}
	return fields, nil
}

// sameJSON 在忽略空白差异的前提下比较两段 JSON。
func sameJSON(a, b json.RawMessage) bool {
	var left, right bytes.Buffer
	if err := json.Compact(&left, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&right, b); err != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(left.Bytes(), right.Bytes())
}
