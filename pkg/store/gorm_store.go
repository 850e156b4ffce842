package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"studyhelper/pkg/domain"
)

const migrateLockID int64 = 51735173

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(&BookModel{}, &PageModel{}, &HighlightModel{}, &ExplanationModel{}, &QuestionModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			DELETE FROM page_models p
			WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = p.book_id);
			DELETE FROM highlight_models h
			WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = h.book_id);
			DELETE FROM explanation_models e
			WHERE NOT EXISTS (SELECT 1 FROM highlight_models h WHERE h.id = e.highlight_id);
			DELETE FROM question_models q
			WHERE NOT EXISTS (SELECT 1 FROM explanation_models e WHERE e.id = q.explanation_id);
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'page_models'
				AND constraint_name = 'page_models_book_id_fkey'
			) THEN
				ALTER TABLE page_models
				ADD CONSTRAINT page_models_book_id_fkey
				FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'highlight_models'
				AND constraint_name = 'highlight_models_book_id_fkey'
			) THEN
				ALTER TABLE highlight_models
				ADD CONSTRAINT highlight_models_book_id_fkey
				FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'explanation_models'
				AND constraint_name = 'explanation_models_highlight_id_fkey'
			) THEN
				ALTER TABLE explanation_models
				ADD CONSTRAINT explanation_models_highlight_id_fkey
				FOREIGN KEY (highlight_id) REFERENCES highlight_models(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'question_models'
				AND constraint_name = 'question_models_explanation_id_fkey'
			) THEN
				ALTER TABLE question_models
				ADD CONSTRAINT question_models_explanation_id_fkey
				FOREIGN KEY (explanation_id) REFERENCES explanation_models(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure cascade foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "author", "description", "file_name", "storage_provider", "storage_key", "storage_url",
			"file_size", "total_pages", "is_public", "tags", "status", "error_message", "updated_at",
		}),
	}).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns one page of books visible to the query's viewer, newest first.
func (s *GormStore) ListBooks(q BookQuery) ([]domain.Book, int64, error) {
	q = q.normalized()
	tx := s.db.Model(&BookModel{})
	switch {
	case q.ViewerID == "":
		tx = tx.Where("is_public = ?", true)
	case q.OnlyMine:
		tx = tx.Where("uploader_id = ?", q.ViewerID)
	default:
		tx = tx.Where("is_public = ? OR uploader_id = ?", true, q.ViewerID)
	}
	if q.UploaderID != "" {
		tx = tx.Where("uploader_id = ?", q.UploaderID)
	}
	if q.Tag != "" {
		raw, err := json.Marshal([]string{q.Tag})
		if err != nil {
			return nil, 0, err
		}
		tx = tx.Where("tags @> ?::jsonb", string(raw))
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := paged(tx.Order("created_at DESC").Order("id DESC"), q.Page, q.Limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, total, nil
}

// SetBookStatus updates book status/error.
func (s *GormStore) SetBookStatus(id string, status domain.BookStatus, errMsg string) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetBookPages records the page count found by processing.
func (s *GormStore) SetBookPages(id string, totalPages int) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_pages": totalPages,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// CountBooksAt counts books stored at loc.
func (s *GormStore) CountBooksAt(loc domain.StorageLocation) (int64, error) {
	var n int64
	err := s.db.Model(&BookModel{}).
		Where("storage_provider = ? AND storage_key = ?", string(loc.Provider), loc.Key).
		Count(&n).Error
	return n, err
}

// DeleteBook removes a book and everything hanging off it.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		explanations := tx.Model(&ExplanationModel{}).Select("id").Where("book_id = ?", id)
		if err := tx.Delete(&QuestionModel{}, "explanation_id IN (?)", explanations).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ExplanationModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&HighlightModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PageModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// ReplacePages replaces all extracted pages for a book.
func (s *GormStore) ReplacePages(bookID string, pages []domain.Page) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PageModel{}, "book_id = ?", bookID).Error; err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}
		models := make([]PageModel, 0, len(pages))
		for _, page := range pages {
			models = append(models, PageModel{BookID: bookID, Number: page.Number, Text: stripNUL(page.Text)})
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// GetPage returns the extracted text of one page.
func (s *GormStore) GetPage(bookID string, number int) (domain.Page, bool, error) {
	var model PageModel
	if err := s.db.First(&model, "book_id = ? AND number = ?", bookID, number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Page{}, false, nil
		}
		return domain.Page{}, false, err
	}
	return domain.Page{BookID: model.BookID, Number: model.Number, Text: model.Text}, true, nil
}

// SaveHighlight stores or updates a highlight.
func (s *GormStore) SaveHighlight(h domain.Highlight) error {
	model := highlightToModel(h)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"page_number", "text", "bounding_box", "color", "note", "updated_at"}),
	}).Create(&model).Error
}

// GetHighlight retrieves a highlight.
func (s *GormStore) GetHighlight(id string) (domain.Highlight, bool, error) {
	var model HighlightModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Highlight{}, false, nil
		}
		return domain.Highlight{}, false, err
	}
	return highlightFromModel(model), true, nil
}

// ListHighlights returns highlights ordered by page then creation.
func (s *GormStore) ListHighlights(q HighlightQuery) ([]domain.Highlight, int64, error) {
	tx := s.db.Model(&HighlightModel{})
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.BookID != "" {
		tx = tx.Where("book_id = ?", q.BookID)
	}
	if q.PageNumber > 0 {
		tx = tx.Where("page_number = ?", q.PageNumber)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []HighlightModel
	if err := paged(tx.Order("page_number ASC").Order("created_at ASC"), q.Page, q.Limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	items := make([]domain.Highlight, 0, len(models))
	for _, m := range models {
		items = append(items, highlightFromModel(m))
	}
	return items, total, nil
}

// DeleteHighlight removes a highlight with its explanation and questions.
func (s *GormStore) DeleteHighlight(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		explanations := tx.Model(&ExplanationModel{}).Select("id").Where("highlight_id = ?", id)
		if err := tx.Delete(&QuestionModel{}, "explanation_id IN (?)", explanations).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ExplanationModel{}, "highlight_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&HighlightModel{}, "id = ?", id).Error
	})
}

// SaveExplanation stores or replaces an explanation.
func (s *GormStore) SaveExplanation(e domain.AIExplanation) error {
	model := explanationToModel(e)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"context", "explanation", "model", "updated_at"}),
	}).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// GetExplanation retrieves an explanation.
func (s *GormStore) GetExplanation(id string) (domain.AIExplanation, bool, error) {
	return s.firstExplanation("id = ?", id)
}

// GetExplanationByHighlight retrieves the cached explanation of a highlight.
func (s *GormStore) GetExplanationByHighlight(highlightID string) (domain.AIExplanation, bool, error) {
	return s.firstExplanation("highlight_id = ?", highlightID)
}

func (s *GormStore) firstExplanation(cond string, arg any) (domain.AIExplanation, bool, error) {
	var model ExplanationModel
	if err := s.db.First(&model, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AIExplanation{}, false, nil
		}
		return domain.AIExplanation{}, false, err
	}
	return explanationFromModel(model), true, nil
}

// ListExplanations returns explanations newest first.
func (s *GormStore) ListExplanations(q ExplanationQuery) ([]domain.AIExplanation, int64, error) {
	tx := s.db.Model(&ExplanationModel{})
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.BookID != "" {
		tx = tx.Where("book_id = ?", q.BookID)
	}
	if q.HighlightID != "" {
		tx = tx.Where("highlight_id = ?", q.HighlightID)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ExplanationModel
	if err := paged(tx.Order("created_at DESC").Order("id DESC"), q.Page, q.Limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	items := make([]domain.AIExplanation, 0, len(models))
	for _, m := range models {
		items = append(items, explanationFromModel(m))
	}
	return items, total, nil
}

// SaveQuestion records a follow-up question and its answer.
func (s *GormStore) SaveQuestion(q domain.AIQuestion) error {
	model := QuestionModel{
		ID:            q.ID,
		ExplanationID: q.ExplanationID,
		UserID:        q.UserID,
		Question:      q.Question,
		Answer:        q.Answer,
		CreatedAt:     q.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListQuestions returns questions of an explanation in chronological order.
func (s *GormStore) ListQuestions(explanationID string, limit int) ([]domain.AIQuestion, error) {
	query := s.db.Where("explanation_id = ?", explanationID)
	var models []QuestionModel
	if limit > 0 {
		if err := query.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	} else if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.AIQuestion, 0, len(models))
	for _, m := range models {
		items = append(items, domain.AIQuestion{
			ID:            m.ID,
			ExplanationID: m.ExplanationID,
			UserID:        m.UserID,
			Question:      m.Question,
			Answer:        m.Answer,
			CreatedAt:     m.CreatedAt,
		})
	}
	return items, nil
}

func paged(tx *gorm.DB, page, limit int) *gorm.DB {
	offset, limit := window(page, limit)
	if limit == 0 {
		return tx
	}
	return tx.Offset(offset).Limit(limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// stripNUL drops NUL bytes, which Postgres text columns reject.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func bookToModel(b domain.Book) BookModel {
	tags, _ := json.Marshal(NormalizeTags(b.Tags))
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Description:     b.Description,
		FileName:        b.FileName,
		StorageProvider: string(b.Storage.Provider),
		StorageKey:      b.Storage.Key,
		StorageURL:      b.Storage.URL,
		FileSize:        b.FileSize,
		TotalPages:      b.TotalPages,
		UploaderID:      b.UploaderID,
		UploaderEmail:   b.UploaderEmail,
		IsPublic:        b.IsPublic,
		Tags:            tags,
		Status:          string(b.Status),
		ErrorMessage:    b.ErrorMessage,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	tags := []string{}
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &tags)
	}
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Description: m.Description,
		FileName:    m.FileName,
		Storage: domain.StorageLocation{
			Provider: domain.StorageProvider(m.StorageProvider),
			Key:      m.StorageKey,
			URL:      m.StorageURL,
		},
		FileSize:      m.FileSize,
		TotalPages:    m.TotalPages,
		UploaderID:    m.UploaderID,
		UploaderEmail: m.UploaderEmail,
		IsPublic:      m.IsPublic,
		Tags:          tags,
		Status:        domain.BookStatus(m.Status),
		ErrorMessage:  m.ErrorMessage,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func highlightToModel(h domain.Highlight) HighlightModel {
	box, _ := json.Marshal(h.BoundingBox)
	return HighlightModel{
		ID:          h.ID,
		BookID:      h.BookID,
		UserID:      h.UserID,
		PageNumber:  h.PageNumber,
		Text:        h.Text,
		BoundingBox: box,
		Color:       h.Color,
		Note:        h.Note,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

func highlightFromModel(m HighlightModel) domain.Highlight {
	var box domain.BoundingBox
	if len(m.BoundingBox) > 0 {
		_ = json.Unmarshal(m.BoundingBox, &box)
	}
	return domain.Highlight{
		ID:          m.ID,
		BookID:      m.BookID,
		UserID:      m.UserID,
		PageNumber:  m.PageNumber,
		Text:        m.Text,
		BoundingBox: box,
		Color:       m.Color,
		Note:        m.Note,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func explanationToModel(e domain.AIExplanation) ExplanationModel {
	return ExplanationModel{
		ID:          e.ID,
		HighlightID: e.HighlightID,
		BookID:      e.BookID,
		UserID:      e.UserID,
		Context:     e.Context,
		Explanation: e.Explanation,
		Model:       e.Model,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func explanationFromModel(m ExplanationModel) domain.AIExplanation {
	return domain.AIExplanation{
		ID:          m.ID,
		HighlightID: m.HighlightID,
		BookID:      m.BookID,
		UserID:      m.UserID,
		Context:     m.Context,
		Explanation: m.Explanation,
		Model:       m.Model,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
