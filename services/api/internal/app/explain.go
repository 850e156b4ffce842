package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyhelper/internal/util"
	"studyhelper/pkg/ai"
	"studyhelper/pkg/capture"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/store"
)

// ExplainResult is an explanation with the highlight it belongs to. Cached is
// set when a stored explanation was returned without calling the model.
type ExplainResult struct {
	Explanation domain.AIExplanation `json:"explanation"`
	Highlight   domain.Highlight     `json:"highlight"`
	Cached      bool                 `json:"cached"`
}

// Explain returns the stored explanation of a highlight or generates one.
// Without a highlight ID the selection is saved as a new highlight first.
func (a *App) Explain(ctx context.Context, user domain.User, in ExplainInput) (ExplainResult, error) {
	if err := in.Validate(); err != nil {
		return ExplainResult{}, invalid(err)
	}
	var (
		h   domain.Highlight
		err error
	)
	if id := strings.TrimSpace(in.HighlightID); id != "" {
		h, err = a.GetHighlight(user, id)
	} else {
		if a.generator == nil {
			return ExplainResult{}, ErrAIUnavailable
		}
		h, err = a.CreateHighlight(user, HighlightInput{
			BookID:      in.BookID,
			PageNumber:  in.PageNumber,
			Text:        in.Text,
			BoundingBox: in.BoundingBox,
		})
	}
	if err != nil {
		return ExplainResult{}, err
	}

	existing, found, err := a.store.GetExplanationByHighlight(h.ID)
	if err != nil {
		return ExplainResult{}, fmt.Errorf("get explanation: %w", err)
	}
	if found && !in.Regenerate {
		return ExplainResult{Explanation: existing, Highlight: h, Cached: true}, nil
	}
	if a.generator == nil {
		return ExplainResult{}, ErrAIUnavailable
	}

	contextText := strings.TrimSpace(in.Context)
	if contextText == "" {
		contextText = a.pageContext(ctx, h)
	}
	system, prompt := ai.ExplainPrompt(h.Text, contextText)
	text, err := a.generator.GenerateText(ctx, system, prompt)
	if err != nil {
		util.LoggerFromContext(ctx).Error("explanation generation failed", "highlight_id", h.ID, "model", a.generator.Model(), "err", err)
		return ExplainResult{}, fmt.Errorf("%w: %v", ErrAIUpstream, err)
	}

	now := a.now()
	exp := domain.AIExplanation{
		ID:          util.NewID(),
		HighlightID: h.ID,
		BookID:      h.BookID,
		UserID:      user.ID,
		Context:     contextText,
		Explanation: strings.TrimSpace(text),
		Model:       a.generator.Model(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if found {
		exp.ID = existing.ID
		exp.CreatedAt = existing.CreatedAt
	}
	if err := a.store.SaveExplanation(exp); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return ExplainResult{}, fmt.Errorf("save explanation: %w", err)
		}
		// A concurrent request stored its explanation first.
		stored, ok, getErr := a.store.GetExplanationByHighlight(h.ID)
		if getErr != nil || !ok {
			return ExplainResult{}, fmt.Errorf("save explanation: %w", err)
		}
		return ExplainResult{Explanation: stored, Highlight: h, Cached: true}, nil
	}
	return ExplainResult{Explanation: exp, Highlight: h}, nil
}

// pageContext cuts the surrounding text of the highlight's page, or returns
// "" when the page has not been processed.
func (a *App) pageContext(ctx context.Context, h domain.Highlight) string {
	page, ok, err := a.store.GetPage(h.BookID, h.PageNumber)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("load page context failed", "book_id", h.BookID, "page", h.PageNumber, "err", err)
		return ""
	}
	if !ok {
		return ""
	}
	return ai.ContextWindow(page.Text, h.Text, a.contextWindow)
}

// ExplanationPage is one page of the caller's explanations.
type ExplanationPage struct {
	Explanations []domain.AIExplanation `json:"explanations"`
	Pagination   domain.Pagination      `json:"pagination"`
}

func (a *App) ListExplanations(user domain.User, f ExplanationFilter) (ExplanationPage, error) {
	page, limit := domain.NormalizePage(f.Page, f.Limit)
	items, total, err := a.store.ListExplanations(store.ExplanationQuery{
		UserID:      user.ID,
		BookID:      strings.TrimSpace(f.BookID),
		HighlightID: strings.TrimSpace(f.HighlightID),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		return ExplanationPage{}, fmt.Errorf("list explanations: %w", err)
	}
	if items == nil {
		items = []domain.AIExplanation{}
	}
	return ExplanationPage{Explanations: items, Pagination: domain.NewPagination(page, limit, total)}, nil
}

// ExplanationDetail is an explanation with its follow-up questions, oldest first.
type ExplanationDetail struct {
	domain.AIExplanation
	Highlight *domain.Highlight   `json:"highlight,omitempty"`
	Questions []domain.AIQuestion `json:"questions"`
}

func (a *App) ownedExplanation(user domain.User, id string) (domain.AIExplanation, error) {
	exp, ok, err := a.store.GetExplanation(strings.TrimSpace(id))
	if err != nil {
		return domain.AIExplanation{}, fmt.Errorf("get explanation: %w", err)
	}
	if !ok {
		return domain.AIExplanation{}, ErrExplanationNotFound
	}
	if user.ID == "" || exp.UserID != user.ID {
		return domain.AIExplanation{}, ErrExplanationForbidden
	}
	return exp, nil
}

func (a *App) GetExplanation(user domain.User, id string) (ExplanationDetail, error) {
	exp, err := a.ownedExplanation(user, id)
	if err != nil {
		return ExplanationDetail{}, err
	}
	questions, err := a.store.ListQuestions(exp.ID, 0)
	if err != nil {
		return ExplanationDetail{}, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []domain.AIQuestion{}
	}
	detail := ExplanationDetail{AIExplanation: exp, Questions: questions}
	if h, ok, err := a.store.GetHighlight(exp.HighlightID); err == nil && ok {
		detail.Highlight = &h
	}
	return detail, nil
}

// AskQuestion answers a follow-up question, including up to historyLimit
// earlier exchanges on the same explanation, and stores the answer.
func (a *App) AskQuestion(ctx context.Context, user domain.User, in QuestionInput) (domain.AIQuestion, error) {
	if err := in.Validate(); err != nil {
		return domain.AIQuestion{}, invalid(err)
	}
	exp, err := a.ownedExplanation(user, in.ExplanationID)
	if err != nil {
		return domain.AIQuestion{}, err
	}
	if a.generator == nil {
		return domain.AIQuestion{}, ErrAIUnavailable
	}
	history, err := a.store.ListQuestions(exp.ID, a.historyLimit)
	if err != nil {
		return domain.AIQuestion{}, fmt.Errorf("list questions: %w", err)
	}
	qa := make([]ai.QA, 0, len(history))
	for _, q := range history {
		qa = append(qa, ai.QA{Question: q.Question, Answer: q.Answer})
	}
	selected := ""
	if h, ok, err := a.store.GetHighlight(exp.HighlightID); err == nil && ok {
		selected = h.Text
	}
	system, prompt := ai.QuestionPrompt(selected, exp.Explanation, qa, in.Question)
	answer, err := a.generator.GenerateText(ctx, system, prompt)
	if err != nil {
		util.LoggerFromContext(ctx).Error("follow-up answer failed", "explanation_id", exp.ID, "model", a.generator.Model(), "err", err)
		return domain.AIQuestion{}, fmt.Errorf("%w: %v", ErrAIUpstream, err)
	}
	q := domain.AIQuestion{
		ID:            util.NewID(),
		ExplanationID: exp.ID,
		UserID:        user.ID,
		Question:      strings.TrimSpace(in.Question),
		Answer:        strings.TrimSpace(answer),
		CreatedAt:     a.now(),
	}
	if err := a.store.SaveQuestion(q); err != nil {
		return domain.AIQuestion{}, fmt.Errorf("save question: %w", err)
	}
	return q, nil
}

// ExtractResult is the text read from a capture. Fallback marks the canned
// message returned when nothing could be read.
type ExtractResult struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

// ExtractText crops the capture to the selection and reads its text with the
// vision extractor. Decode, crop and provider failures yield the fallback
// message instead of an error.
func (a *App) ExtractText(ctx context.Context, in ExtractInput) (ExtractResult, error) {
	if err := in.Validate(); err != nil {
		return ExtractResult{}, invalid(err)
	}
	logger := util.LoggerFromContext(ctx)
	fallback := ExtractResult{Text: ai.FallbackExtractionText, Fallback: true}
	if a.extractor == nil {
		logger.Warn("text extraction unavailable: no extractor configured")
		return fallback, nil
	}
	png, err := capture.Prepare(in.Image, in.Selection, in.Scale)
	if err != nil {
		logger.Warn("capture rejected", "err", err, "empty_region", errors.Is(err, capture.ErrEmptyRegion))
		return fallback, nil
	}
	text, err := a.extractor.ExtractText(ctx, png)
	if err != nil {
		logger.Warn("text extraction failed", "err", err)
		return fallback, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback, nil
	}
	return ExtractResult{Text: text}, nil
}
