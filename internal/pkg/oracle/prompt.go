package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

const screenSystemPrompt = `You are the Terms-of-Service screener for a debate platform.
Your only authority is to catch unambiguous, severe violations: doxxing, credible threats,
illegal content, spam floods. Borderline or merely low-quality content MUST be approved
and deferred to full review. Respond with a single JSON object:
{"approved": bool, "violation_type": string or "", "reasoning": string, "confidence": number 0..1}`

const judgeSystemPrompt = `You are the Robot Overlord, the moderation judge of a debate platform.
Evaluate the submission for logic, civility and relevance. Respond with a single JSON object:
{"decision": "approved"|"rejected"|"warning"|"tos_violation", "feedback": string, "reasoning": string, "confidence": number 0..1}
"feedback" addresses the author directly and explains the decision.`

func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content type: %s\n", in.ContentType)
	if in.UserName != "" {
		fmt.Fprintf(&b, "Author: %s\n", in.UserName)
	}
	if in.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", in.Language)
	}
	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	fmt.Fprintf(&b, "\n%s", in.Content)
	return b.String()
}

// extractJSON 从模型回复中截取第一个 JSON 对象并反序列化。
// 模型偶尔会在 JSON 前后加说明文字或代码块围栏。
func extractJSON(text string, dest interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in oracle response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), dest)
}

func parseScreenResult(text string) (ScreenResult, error) {
	var r ScreenResult
	if err := extractJSON(text, &r); err != nil {
		return ScreenResult{}, err
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ScreenResult{}, fmt.Errorf("oracle confidence out of range: %f", r.Confidence)
	}
	return r, nil
}

func parseVerdict(text string) (Verdict, error) {
	var v Verdict
	if err := extractJSON(text, &v); err != nil {
		return Verdict{}, err
	}
	switch v.Decision {
	case DecisionApproved, DecisionRejected, DecisionWarning, DecisionToSViolation:
	default:
		return Verdict{}, fmt.Errorf("unknown oracle decision: %q", v.Decision)
	}
	return v, nil
}
