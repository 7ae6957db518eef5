package judgers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"orbitoj/internal/judge/model"
)

// hashPayload holds every parameter that affects the semantic outcome of
// running one testcase. Marshaling a fixed struct keeps field order stable,
// so equal payloads always produce equal hashes.
type hashPayload struct {
	Kind           string          `json:"kind"`
	Input          model.ContentID `json:"input,omitempty"`
	Answer         model.ContentID `json:"answer,omitempty"`
	Interactor     model.ContentID `json:"interactor,omitempty"`
	UserAnswerName string          `json:"userAnswerName,omitempty"`
	TimeLimitMs    int64           `json:"timeLimit,omitempty"`
	MemoryLimitMiB int64           `json:"memoryLimit,omitempty"`

	// Extra carries the submission's extra parameters. encoding/json sorts
	// map keys, so equal maps always marshal identically.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

func (p hashPayload) hash() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// positionPayload resolves the payload for a subtask testcase position from
// parsed judge info. Positions out of the plan return a zero payload, which
// still hashes deterministically.
func positionPayload(kind string, raw json.RawMessage, subtask, testcase int, testData map[string]model.ContentID, extra map[string]interface{}) (hashPayload, error) {
	info, err := parseJudgeInfo(raw)
	if err != nil {
		return hashPayload{}, err
	}
	plans, err := buildPlan(info)
	if err != nil {
		return hashPayload{}, err
	}
	if subtask < 0 || subtask >= len(plans) || testcase < 0 || testcase >= len(plans[subtask].cases) {
		return hashPayload{Kind: kind}, nil
	}
	c := plans[subtask].cases[testcase]
	payload := hashPayload{
		Kind:           kind,
		Input:          testData[c.info.InputFile],
		Answer:         testData[c.info.OutputFile],
		UserAnswerName: c.info.UserOutputFilename,
		TimeLimitMs:    c.timeLimitMs,
		MemoryLimitMiB: c.memoryLimitMiB,
		Extra:          extra,
	}
	if info.Interactor != nil {
		payload.Interactor = testData[info.Interactor.SourceFile]
	}
	return payload, nil
}
