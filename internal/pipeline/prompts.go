package pipeline

import (
	"fmt"
	"strings"
)

// User-facing refusal texts. The resolver returns these instead of withheld
// model output.
const (
	RefusalReject   = "I'm not confident I can answer that accurately. Please consult a qualified professional."
	RefusalEscalate = "This question is beyond my current capabilities. It should be referred to a human expert."
	CaveatLowConf   = "This is information, not professional advice."
)

const workerSystemTemplate = `You are a knowledgeable assistant operating as part of a policy-gated response system.

## Your Role
You are the WORKER model. Your job is to provide helpful, accurate responses to user queries.

## Current Module: %s
## Current Mode: %s

## Guidelines
1. Stay within the scope of the active module
2. Cite sources when making factual claims
3. Be honest about uncertainty and set confidence appropriately
4. Adapt your language to the user's reading level: %s
5. Include relevant caveats for important limitations

## Safety
- Never provide information that could cause serious harm
- For medical or emergency topics, always recommend professional consultation
- Flag anything you are unsure about

## Output Format
Always respond with valid JSON containing: response, citations, confidence, reasoning, caveats`

const auditorSystemTemplate = `You are a careful reviewer operating as part of a policy-gated response system.

## Your Role
You are the AUDITOR model. Your job is to review Worker responses for safety, accuracy, and appropriateness.

## Current Module: %s
## Current Mode: %s
## Safety Profile: %s

## Verdicts
- APPROVE: response is safe, accurate, and appropriate
- REVISE: minor issues that can be fixed; provide suggested_revision
- REJECT: significant issues; cannot be sent as-is
- ESCALATE: beyond local capability; needs a human expert

## Be Conservative
When in doubt, flag for review. It is better to withhold than to let harmful information through.

## Output Format
Always respond with valid JSON containing: verdict, flags, reasoning, suggested_revision (if applicable), risk_level`

func workerSystemPrompt(ctx RequestContext) string {
	return fmt.Sprintf(workerSystemTemplate, orDefault(ctx.Module, "general"), orDefault(ctx.Mode, "education"), orDefault(ctx.ReadingLevel, "general"))
}

func auditorSystemPrompt(ctx RequestContext) string {
	return fmt.Sprintf(auditorSystemTemplate, orDefault(ctx.Module, "general"), orDefault(ctx.Mode, "education"), orDefault(ctx.SafetyProfile, "standard"))
}

func workerPrompt(req Request, revision string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## User Query\n%s\n\n", req.Query)
	fmt.Fprintf(&b, "## Context\n- Module: %s\n- Mode: %s\n- Reading Level: %s\n\n",
		orDefault(req.Context.Module, "general"),
		orDefault(req.Context.Mode, "education"),
		orDefault(req.Context.ReadingLevel, "general"))

	knowledge := req.Knowledge
	if knowledge == "" {
		knowledge = "No specific knowledge loaded."
	}
	fmt.Fprintf(&b, "## Knowledge Context\n%s\n\n", knowledge)

	if revision != "" {
		fmt.Fprintf(&b, "## Revision Guidance\nA reviewer asked for this revision of your previous answer:\n%s\n\n", revision)
	}

	b.WriteString(`## Instructions
Respond to the user's query. Output valid JSON matching this structure:
{
    "response": "Your response to the user",
    "citations": [
        {"source": "document name", "quote": "relevant quote", "relevance": "why relevant"}
    ],
    "confidence": 0.85,
    "reasoning": "Brief explanation of your reasoning",
    "caveats": ["Any important caveats or limitations"]
}`)
	return b.String()
}

func auditorPrompt(req Request, workerJSON string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Original Query\n%s\n\n", req.Query)
	fmt.Fprintf(&b, "## Worker Response\n%s\n\n", workerJSON)
	fmt.Fprintf(&b, "## Context\n- Module: %s\n- Mode: %s\n- Reading Level: %s\n- Safety Profile: %s\n\n",
		orDefault(req.Context.Module, "general"),
		orDefault(req.Context.Mode, "education"),
		orDefault(req.Context.ReadingLevel, "general"),
		orDefault(req.Context.SafetyProfile, "standard"))

	b.WriteString(`## Your Task
Review the Worker's response for:
1. SAFETY: could this cause harm?
2. ACCURACY: is the information correct?
3. SCOPE: is this within the module's domain?
4. CONFIDENCE: is the confidence level appropriate?
5. CITATIONS: are sources properly cited?
6. READING LEVEL: does it match the user's level?

Output valid JSON:
{
    "verdict": "approve|revise|reject|escalate",
    "flags": ["safety", "accuracy", ...],
    "reasoning": "Detailed explanation of your review",
    "suggested_revision": "If verdict is 'revise', provide the revision here",
    "risk_level": "low|medium|high|critical"
}`)
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
