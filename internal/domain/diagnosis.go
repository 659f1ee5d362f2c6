package domain

// Diagnosis merges the two reviewers' opinions about one issue.
// AgreementPercentage and ConsensusAchieved are derived by the consensus
// policy; ProposedFix is the value the fix-validation loop starts from.
// A diagnosis where both reviewers failed is not actionable and sends the
// issue straight to escalation.
type Diagnosis struct {
	Issue               Issue             `json:"issue"`
	Opinions            []ReviewerOpinion `json:"opinions"`
	AgreementPercentage int               `json:"agreement_percentage"`
	ProposedFix         string            `json:"proposed_fix"`
	ConsensusAchieved   bool              `json:"consensus_achieved"`
	Actionable          bool              `json:"actionable"`
}
