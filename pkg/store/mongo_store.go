package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studyhelper/pkg/domain"
)

const (
	mongoOpTimeout  = 10 * time.Second
	defaultMongoDB  = "studyhelper"
	booksColl       = "books"
	pagesColl       = "pages"
	highlightsColl  = "highlights"
	explanationColl = "ai_explanations"
	questionsColl   = "ai_questions"
)

type bookDoc struct {
	ID            string                 `bson:"_id"`
	Title         string                 `bson:"title"`
	Author        string                 `bson:"author,omitempty"`
	Description   string                 `bson:"description,omitempty"`
	FileName      string                 `bson:"fileName"`
	Storage       domain.StorageLocation `bson:"storage"`
	FileSize      int64                  `bson:"fileSize"`
	TotalPages    int                    `bson:"totalPages"`
	UploaderID    string                 `bson:"uploaderId"`
	UploaderEmail string                 `bson:"uploaderEmail,omitempty"`
	IsPublic      bool                   `bson:"isPublic"`
	Tags          []string               `bson:"tags"`
	Status        string                 `bson:"status"`
	ErrorMessage  string                 `bson:"errorMessage,omitempty"`
	CreatedAt     time.Time              `bson:"createdAt"`
	UpdatedAt     time.Time              `bson:"updatedAt"`
}

type pageDoc struct {
	ID     string `bson:"_id"`
	BookID string `bson:"bookId"`
	Number int    `bson:"number"`
	Text   string `bson:"text"`
}

type highlightDoc struct {
	ID          string             `bson:"_id"`
	BookID      string             `bson:"bookId"`
	UserID      string             `bson:"userId"`
	PageNumber  int                `bson:"pageNumber"`
	Text        string             `bson:"text"`
	BoundingBox domain.BoundingBox `bson:"boundingBox"`
	Color       string             `bson:"color"`
	Note        string             `bson:"note,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type explanationDoc struct {
	ID          string    `bson:"_id"`
	HighlightID string    `bson:"highlightId"`
	BookID      string    `bson:"bookId"`
	UserID      string    `bson:"userId"`
	Context     string    `bson:"context,omitempty"`
	Explanation string    `bson:"explanation"`
	Model       string    `bson:"model,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type questionDoc struct {
	ID            string    `bson:"_id"`
	ExplanationID string    `bson:"explanationId"`
	UserID        string    `bson:"userId"`
	Question      string    `bson:"question"`
	Answer        string    `bson:"answer"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// MongoStore implements Store on MongoDB with one collection per record type.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(database) == "" {
		database = defaultMongoDB
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		booksColl: {
			{Keys: bson.D{{Key: "uploaderId", Value: 1}}},
			{Keys: bson.D{{Key: "isPublic", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
			{Keys: bson.D{{Key: "storage.provider", Value: 1}, {Key: "storage.key", Value: 1}}},
		},
		pagesColl: {
			{Keys: bson.D{{Key: "bookId", Value: 1}, {Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		highlightsColl: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "bookId", Value: 1}, {Key: "pageNumber", Value: 1}}},
			{Keys: bson.D{{Key: "bookId", Value: 1}}},
		},
		explanationColl: {
			{Keys: bson.D{{Key: "highlightId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "bookId", Value: 1}}},
		},
		questionsColl: {
			{Keys: bson.D{{Key: "explanationId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), mongoOpTimeout)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := opContext()
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) upsert(coll, id string, doc any) error {
	ctx, cancel := opContext()
	defer cancel()
	_, err := s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) findOne(coll string, filter bson.M, out any) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	err := s.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) findPage(coll string, filter bson.M, sort bson.D, page, limit int, out any) (int64, error) {
	ctx, cancel := opContext()
	defer cancel()
	total, err := s.db.Collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	opts := options.Find().SetSort(sort)
	if offset, limit := window(page, limit); limit > 0 {
		opts.SetSkip(int64(offset)).SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	if err := cursor.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *MongoStore) SaveBook(b domain.Book) error {
	return s.upsert(booksColl, b.ID, bookToDoc(b))
}

func (s *MongoStore) GetBook(id string) (domain.Book, bool, error) {
	var doc bookDoc
	ok, err := s.findOne(booksColl, bson.M{"_id": id}, &doc)
	if !ok || err != nil {
		return domain.Book{}, false, err
	}
	return bookFromDoc(doc), true, nil
}

// ListBooks applies visibility, tag and case-insensitive title/author search.
func (s *MongoStore) ListBooks(q BookQuery) ([]domain.Book, int64, error) {
	q = q.normalized()
	conds := bson.A{}
	switch {
	case q.ViewerID == "":
		conds = append(conds, bson.M{"isPublic": true})
	case q.OnlyMine:
		conds = append(conds, bson.M{"uploaderId": q.ViewerID})
	default:
		conds = append(conds, bson.M{"$or": bson.A{bson.M{"isPublic": true}, bson.M{"uploaderId": q.ViewerID}}})
	}
	if q.UploaderID != "" {
		conds = append(conds, bson.M{"uploaderId": q.UploaderID})
	}
	if q.Tag != "" {
		conds = append(conds, bson.M{"tags": q.Tag})
	}
	if q.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(q.Search), "$options": "i"}
		conds = append(conds, bson.M{"$or": bson.A{bson.M{"title": pattern}, bson.M{"author": pattern}}})
	}
	var docs []bookDoc
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	total, err := s.findPage(booksColl, bson.M{"$and": conds}, sort, q.Page, q.Limit, &docs)
	if err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, bookFromDoc(doc))
	}
	return books, total, nil
}

func (s *MongoStore) SetBookStatus(id string, status domain.BookStatus, errMsg string) error {
	return s.updateBook(id, bson.M{"status": string(status), "errorMessage": errMsg})
}

func (s *MongoStore) SetBookPages(id string, totalPages int) error {
	return s.updateBook(id, bson.M{"totalPages": totalPages})
}

func (s *MongoStore) updateBook(id string, set bson.M) error {
	ctx, cancel := opContext()
	defer cancel()
	set["updatedAt"] = time.Now().UTC()
	_, err := s.db.Collection(booksColl).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

func (s *MongoStore) CountBooksAt(loc domain.StorageLocation) (int64, error) {
	ctx, cancel := opContext()
	defer cancel()
	return s.db.Collection(booksColl).CountDocuments(ctx, bson.M{
		"storage.provider": loc.Provider,
		"storage.key":      loc.Key,
	})
}

// DeleteBook removes dependants first so a partial failure leaves the book
// in place for a retry.
func (s *MongoStore) DeleteBook(id string) error {
	ctx, cancel := opContext()
	defer cancel()
	explanationIDs, err := s.distinctIDs(ctx, explanationColl, bson.M{"bookId": id})
	if err != nil {
		return err
	}
	steps := []struct {
		coll   string
		filter bson.M
	}{
		{questionsColl, bson.M{"explanationId": bson.M{"$in": explanationIDs}}},
		{explanationColl, bson.M{"bookId": id}},
		{highlightsColl, bson.M{"bookId": id}},
		{pagesColl, bson.M{"bookId": id}},
		{booksColl, bson.M{"_id": id}},
	}
	for _, step := range steps {
		if _, err := s.db.Collection(step.coll).DeleteMany(ctx, step.filter); err != nil {
			return fmt.Errorf("delete %s: %w", step.coll, err)
		}
	}
	return nil
}

func (s *MongoStore) distinctIDs(ctx context.Context, coll string, filter bson.M) (bson.A, error) {
	values, err := s.db.Collection(coll).Distinct(ctx, "_id", filter)
	if err != nil {
		return nil, err
	}
	return bson.A(values), nil
}

func (s *MongoStore) ReplacePages(bookID string, pages []domain.Page) error {
	ctx, cancel := opContext()
	defer cancel()
	coll := s.db.Collection(pagesColl)
	if _, err := coll.DeleteMany(ctx, bson.M{"bookId": bookID}); err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	docs := make([]any, 0, len(pages))
	for _, page := range pages {
		docs = append(docs, pageDoc{
			ID:     fmt.Sprintf("%s:%d", bookID, page.Number),
			BookID: bookID,
			Number: page.Number,
			Text:   page.Text,
		})
	}
	_, err := coll.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) GetPage(bookID string, number int) (domain.Page, bool, error) {
	var doc pageDoc
	ok, err := s.findOne(pagesColl, bson.M{"bookId": bookID, "number": number}, &doc)
	if !ok || err != nil {
		return domain.Page{}, false, err
	}
	return domain.Page{BookID: doc.BookID, Number: doc.Number, Text: doc.Text}, true, nil
}

func (s *MongoStore) SaveHighlight(h domain.Highlight) error {
	return s.upsert(highlightsColl, h.ID, highlightDoc(h))
}

func (s *MongoStore) GetHighlight(id string) (domain.Highlight, bool, error) {
	var doc highlightDoc
	ok, err := s.findOne(highlightsColl, bson.M{"_id": id}, &doc)
	if !ok || err != nil {
		return domain.Highlight{}, false, err
	}
	return domain.Highlight(doc), true, nil
}

func (s *MongoStore) ListHighlights(q HighlightQuery) ([]domain.Highlight, int64, error) {
	filter := bson.M{}
	if q.UserID != "" {
		filter["userId"] = q.UserID
	}
	if q.BookID != "" {
		filter["bookId"] = q.BookID
	}
	if q.PageNumber > 0 {
		filter["pageNumber"] = q.PageNumber
	}
	var docs []highlightDoc
	sort := bson.D{{Key: "pageNumber", Value: 1}, {Key: "createdAt", Value: 1}}
	total, err := s.findPage(highlightsColl, filter, sort, q.Page, q.Limit, &docs)
	if err != nil {
		return nil, 0, err
	}
	items := make([]domain.Highlight, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.Highlight(doc))
	}
	return items, total, nil
}

func (s *MongoStore) DeleteHighlight(id string) error {
	ctx, cancel := opContext()
	defer cancel()
	explanationIDs, err := s.distinctIDs(ctx, explanationColl, bson.M{"highlightId": id})
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(questionsColl).DeleteMany(ctx, bson.M{"explanationId": bson.M{"$in": explanationIDs}}); err != nil {
		return err
	}
	if _, err := s.db.Collection(explanationColl).DeleteMany(ctx, bson.M{"highlightId": id}); err != nil {
		return err
	}
	_, err = s.db.Collection(highlightsColl).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) SaveExplanation(e domain.AIExplanation) error {
	err := s.upsert(explanationColl, e.ID, explanationDoc(e))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (s *MongoStore) GetExplanation(id string) (domain.AIExplanation, bool, error) {
	return s.findExplanation(bson.M{"_id": id})
}

func (s *MongoStore) GetExplanationByHighlight(highlightID string) (domain.AIExplanation, bool, error) {
	return s.findExplanation(bson.M{"highlightId": highlightID})
}

func (s *MongoStore) findExplanation(filter bson.M) (domain.AIExplanation, bool, error) {
	var doc explanationDoc
	ok, err := s.findOne(explanationColl, filter, &doc)
	if !ok || err != nil {
		return domain.AIExplanation{}, false, err
	}
	return domain.AIExplanation(doc), true, nil
}

func (s *MongoStore) ListExplanations(q ExplanationQuery) ([]domain.AIExplanation, int64, error) {
	filter := bson.M{}
	if q.UserID != "" {
		filter["userId"] = q.UserID
	}
	if q.BookID != "" {
		filter["bookId"] = q.BookID
	}
	if q.HighlightID != "" {
		filter["highlightId"] = q.HighlightID
	}
	var docs []explanationDoc
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	total, err := s.findPage(explanationColl, filter, sort, q.Page, q.Limit, &docs)
	if err != nil {
		return nil, 0, err
	}
	items := make([]domain.AIExplanation, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.AIExplanation(doc))
	}
	return items, total, nil
}

func (s *MongoStore) SaveQuestion(q domain.AIQuestion) error {
	ctx, cancel := opContext()
	defer cancel()
	_, err := s.db.Collection(questionsColl).InsertOne(ctx, questionDoc(q))
	return err
}

func (s *MongoStore) ListQuestions(explanationID string, limit int) ([]domain.AIQuestion, error) {
	ctx, cancel := opContext()
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(questionsColl).Find(ctx, bson.M{"explanationId": explanationID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []questionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]domain.AIQuestion, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.AIQuestion(doc))
	}
	if limit > 0 {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return items, nil
}

func bookToDoc(b domain.Book) bookDoc {
	return bookDoc{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		FileName:      b.FileName,
		Storage:       b.Storage,
		FileSize:      b.FileSize,
		TotalPages:    b.TotalPages,
		UploaderID:    b.UploaderID,
		UploaderEmail: b.UploaderEmail,
		IsPublic:      b.IsPublic,
		Tags:          NormalizeTags(b.Tags),
		Status:        string(b.Status),
		ErrorMessage:  b.ErrorMessage,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromDoc(d bookDoc) domain.Book {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.Book{
		ID:            d.ID,
		Title:         d.Title,
		Author:        d.Author,
		Description:   d.Description,
		FileName:      d.FileName,
		Storage:       d.Storage,
		FileSize:      d.FileSize,
		TotalPages:    d.TotalPages,
		UploaderID:    d.UploaderID,
		UploaderEmail: d.UploaderEmail,
		IsPublic:      d.IsPublic,
		Tags:          tags,
		Status:        domain.BookStatus(d.Status),
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
