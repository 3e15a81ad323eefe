package wizard

import (
	"slices"

	"loanconnect/internal/consent"
	"loanconnect/internal/models"
	"loanconnect/internal/submission"
	"loanconnect/internal/upload"
)

// State is a snapshot of the wizard for rendering.
type State struct {
	Step           Step                   `json:"step"`
	Selection      Selection              `json:"selection"`
	Valid          bool                   `json:"valid"`
	FinancingTypes []models.FinancingType `json:"financingTypes"`
	Countries      []string               `json:"countries"`
	Banks          []models.Bank          `json:"banks"`
	Draft          *models.Loan           `json:"draft,omitempty"`
	Consent        *consent.View          `json:"consent,omitempty"`
	Files          []upload.File          `json:"files,omitempty"`
	CanProceed     bool                   `json:"canProceed"`
	Submitting     bool                   `json:"submitting"`
	Submission     *submission.Progress   `json:"submission,omitempty"`
	Redirect       string                 `json:"redirect,omitempty"`
}

// State returns a snapshot of the wizard.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		Step:           w.step,
		Selection:      w.sel,
		Valid:          w.sel.Valid(),
		FinancingTypes: models.FinancingTypes,
		Countries:      models.Countries,
		Banks:          slices.Clone(w.banks),
		Submitting:     w.submitting,
		Redirect:       w.redirect,
	}
	if w.sel.Bank != nil {
		bank := *w.sel.Bank
		st.Selection.Bank = &bank
	}
	if st.Banks == nil {
		st.Banks = []models.Bank{}
	}
	if draft, ok := w.drafts.Draft(); ok {
		st.Draft = &draft
	}
	if w.dialog != nil {
		view := w.dialog.View()
		st.Consent = &view
	}
	if w.stager != nil {
		st.Files = w.stager.Files()
		st.CanProceed = w.stager.CanProceed()
	}
	if w.sequence != nil {
		progress := w.sequence.Current()
		st.Submission = &progress
	}
	return st
}
