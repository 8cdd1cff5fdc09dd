// Package stage defines the analysis stages of a contract review and runs a
// single stage against the reasoning collaborator.
package stage

import "slices"

// Canonical stage names.
const (
	Structure   = "structure"
	Risk        = "risk"
	Negotiation = "negotiation"
)

// Definition is the static description of one stage. ConcurrentWith is
// documentation only; actual concurrency comes from the dependency graph.
type Definition struct {
	Name           string   `yaml:"name" json:"name"`
	Mandate        string   `yaml:"mandate" json:"mandate"`
	DependsOn      []string `yaml:"depends_on" json:"depends_on"`
	ConcurrentWith []string `yaml:"concurrent_with,omitempty" json:"concurrent_with,omitempty"`
}

// DependsOnStage reports whether name is a declared dependency of d.
func (d Definition) DependsOnStage(name string) bool {
	return slices.Contains(d.DependsOn, name)
}

const StructureMandate = `Behave as a specialist in contract organization and document structuring.
Carefully review the entire contract to assess its overall structure and logical flow.
Identify missing, unclear, repetitive, or disordered sections and clauses.
Return your findings in structured bullet points, highlighting issues clearly.
If necessary, produce a clean, well-organized markdown outline suggesting an improved contract structure.
Focus strictly on clarity, readability, and logical sequencing without providing legal advice.`

const RiskMandate = `Act as a legal framework analyst with a focus on identifying potential risks, ambiguities, and key legal principles within the contract.
Carefully examine each section and clause to detect unclear, inconsistent, or risky language.
For every observation or identified risk, quote the exact clause, sentence, or paragraph from the contract that supports it, as a markdown blockquote or between double quotes, copied character for character.
Clearly indicate the section title, heading, or paragraph number for context.
Present your findings in a structured, factual, and concise manner, ensuring each point is directly supported by the contract text.
Avoid giving general legal advice; focus strictly on what is explicitly written in the contract.`

const NegotiationMandate = `Act as a contract negotiation strategist focused on identifying negotiable clauses and potential imbalances between the parties.
Carefully review the contract to locate provisions that may be unfair, overly restrictive, or commonly subject to negotiation.
For every observation, quote the exact clause, sentence, or paragraph from the contract that supports your point, as a markdown blockquote or between double quotes, copied character for character.
Explain briefly why each quoted clause may be negotiable or require adjustment.
Propose a clear and concrete alternative wording or counter-proposal for each identified clause.
Present your findings in a structured, practical, and concise format, grounded strictly in the contract's language.`

// ConsolidationMandate drives the single merge invocation. It is not part of
// the stage table and cannot be overridden.
const ConsolidationMandate = `Act as the primary consolidation and summarization agent responsible for merging the findings of the analysis stages below.
Combine their findings into a single, coherent, and well-structured final report.
Preserve all quoted contract clauses exactly as they appear, without modification or omission.
Remove duplicated, overlapping, or conflicting points while keeping the most clear and relevant version.
Organize the report in a clean, logical structure that is easy to read and follow.
Ensure that every observation remains traceable to a specific quoted clause from the contract.`

// Defaults returns the canonical three-stage review: structure first, then
// risk, then negotiation, each building on the findings before it.
func Defaults() []Definition {
	return []Definition{
		{
			Name:    Structure,
			Mandate: StructureMandate,
		},
		{
			Name:      Risk,
			Mandate:   RiskMandate,
			DependsOn: []string{Structure},
		},
		{
			Name:      Negotiation,
			Mandate:   NegotiationMandate,
			DependsOn: []string{Structure, Risk},
		},
	}
}

// DefaultMandate returns the built-in mandate for a canonical stage name.
func DefaultMandate(name string) (string, bool) {
	switch name {
	case Structure:
		return StructureMandate, true
	case Risk:
		return RiskMandate, true
	case Negotiation:
		return NegotiationMandate, true
	}
	return "", false
}
