package mongo

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mediaCollectionName = "media_uploads"

// mongoMediaRepository implements repository.MediaRepository
type mongoMediaRepository struct {
	collection *mongo.Collection
}

// NewMongoMediaRepository creates a new media repository backed by MongoDB.
func NewMongoMediaRepository(db *mongo.Database) repository.MediaRepository {
	return &mongoMediaRepository{
		collection: db.Collection(mediaCollectionName),
	}
}

// liveFilter scopes a query to records that are not soft-deleted.
func liveFilter(extra bson.M) bson.M {
	f := bson.M{"deleted": false}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// Create inserts a new media record into the database.
func (r *mongoMediaRepository) Create(ctx context.Context, m *domain.MediaUpload) (primitive.ObjectID, error) {
	if m.OriginalFilename == "" {
		return primitive.NilObjectID, errors.New("media record requires an original filename")
	}
	if m.Size < 0 {
		return primitive.NilObjectID, errors.New("media record size cannot be negative")
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}

	m.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Deleted = false

	result, err := r.collection.InsertOne(ctx, m)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}

	return insertedID, nil
}

// GetByID retrieves a media record by its ID. Soft-deleted records are invisible.
func (r *mongoMediaRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MediaUpload, error) {
	var m domain.MediaUpload
	err := r.collection.FindOne(ctx, liveFilter(bson.M{"_id": id})).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Update applies a partial update and returns the record as stored afterwards.
// Metadata is shallow-merged with the existing map: incoming keys win,
// untouched keys survive.
func (r *mongoMediaRepository) Update(ctx context.Context, id primitive.ObjectID, fields repository.UpdateFields) (*domain.MediaUpload, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}

	if fields.Filename != nil {
		set["filename"] = *fields.Filename
	}
	if fields.Path != nil {
		set["path"] = *fields.Path
	}
	if fields.URL != nil {
		set["url"] = *fields.URL
	}
	if fields.CDNURL != nil {
		set["cdnUrl"] = *fields.CDNURL
	}
	if fields.MimeType != nil {
		set["mimeType"] = *fields.MimeType
	}
	if fields.Size != nil {
		if *fields.Size < 0 {
			return nil, errors.New("media record size cannot be negative")
		}
		set["size"] = *fields.Size
	}
	if fields.Status != nil {
		set["status"] = *fields.Status
	}
	if fields.ThumbnailPath != nil {
		set["thumbnailPath"] = *fields.ThumbnailPath
	}
	if fields.ThumbnailURL != nil {
		set["thumbnailUrl"] = *fields.ThumbnailURL
	}
	if fields.Metadata != nil {
		// Merge happens in Go, not with dotted $set paths, so the stored map
		// always matches what domain.MergeMetadata defines.
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		set["metadata"] = domain.MergeMetadata(existing.Metadata, fields.Metadata)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated domain.MediaUpload
	err := r.collection.FindOneAndUpdate(ctx, liveFilter(bson.M{"_id": id}), bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// Delete marks a record as soft-deleted. The record stays recoverable via
// Restore until ForceDelete removes it.
func (r *mongoMediaRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"deleted":   true,
		"deletedAt": now,
		"updatedAt": now,
	}}

	result, err := r.collection.UpdateOne(ctx, liveFilter(bson.M{"_id": id}), update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ForceDelete permanently removes a record. Only soft-deleted records can be
// force-deleted; a live record must be soft-deleted first.
func (r *mongoMediaRepository) ForceDelete(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "deleted": true}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		// Distinguish "gone" from "present but still live".
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if count > 0 {
			return repository.ErrNotDeleted
		}
		return repository.ErrNotFound
	}
	return nil
}

// Restore brings a soft-deleted record back into normal queries.
func (r *mongoMediaRepository) Restore(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "deleted": true}
	update := bson.M{
		"$set":   bson.M{"deleted": false, "updatedAt": time.Now().UTC()},
		"$unset": bson.M{"deletedAt": ""},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns one page of live records, newest first.
func (r *mongoMediaRepository) List(ctx context.Context, page, pageSize int) (*repository.Page, error) {
	return r.ListFiltered(ctx, repository.Filter{Page: page, PageSize: pageSize})
}

// ListFiltered returns one page of live records matching the filter,
// newest first. Search is a substring match against the original filename.
func (r *mongoMediaRepository) ListFiltered(ctx context.Context, f repository.Filter) (*repository.Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 15
	}

	filter := liveFilter(nil)
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Search != "" {
		// Quote the needle so user input is matched literally, not as a pattern.
		filter["originalFilename"] = bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.PageSize)).
		SetLimit(int64(f.PageSize))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []domain.MediaUpload{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	return &repository.Page{
		Items:    items,
		Page:     f.Page,
		PageSize: f.PageSize,
		Total:    total,
	}, nil
}

// Count returns the number of live records.
func (r *mongoMediaRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, liveFilter(nil))
}

// TotalSize sums the size field over all live records.
func (r *mongoMediaRepository) TotalSize(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: liveFilter(nil)}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$size"}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// Recent returns up to limit live records, newest first.
func (r *mongoMediaRepository) Recent(ctx context.Context, limit int) ([]domain.MediaUpload, error) {
	if limit < 1 {
		limit = 5
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, liveFilter(nil), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []domain.MediaUpload
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ByStatus returns all live records in the given status, newest first.
func (r *mongoMediaRepository) ByStatus(ctx context.Context, status domain.Status) ([]domain.MediaUpload, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, liveFilter(bson.M{"status": status}), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []domain.MediaUpload
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// EnsureMediaIndexes creates necessary indexes for the media collection.
func EnsureMediaIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Listing and filtering always scope to live records first.
			Keys:    bson.D{{Key: "deleted", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "deleted", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Owner lookups from the attaching side (exercises, plans).
			Keys:    bson.D{{Key: "owner.kind", Value: 1}, {Key: "owner.id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("ERROR: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
