package store

import (
	"context"
	"errors"
	"time"

	"github.com/trektide/apiserver/internal/query"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// AccountUpdate describes a partial account update. Nil fields are left
// untouched.
type AccountUpdate struct {
	Name   *string
	Email  *string
	Photo  *string
	Role   *string
	Active *bool
}

// AccountRepository handles persistence for accounts. All lookups used on
// request paths are scoped to active accounts; soft-deleted accounts never
// resolve. The active filter is written out explicitly in each query
// rather than being attached by a hidden interceptor.
type AccountRepository struct {
	coll *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{coll: db.Collection("accounts")}
}

func (r *AccountRepository) GetActiveByID(ctx context.Context, id bson.ObjectID) (types.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id, "active": true})
}

func (r *AccountRepository) GetActiveByEmail(ctx context.Context, email string) (types.Account, error) {
	return r.findOne(ctx, bson.M{"email": email, "active": true})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (types.Account, error) {
	var account types.Account
	err := r.coll.FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.ID = bson.NewObjectID()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Active = true

	if _, err := r.coll.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, id bson.ObjectID, update AccountUpdate) (types.Account, error) {
	set := bson.M{"updated_at": time.Now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Photo != nil {
		set["photo"] = *update.Photo
	}
	if update.Role != nil {
		set["role"] = *update.Role
	}
	if update.Active != nil {
		set["active"] = *update.Active
	}

	var account types.Account
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

// SetPassword replaces the password hash and records the change time.
func (r *AccountRepository) SetPassword(ctx context.Context, id bson.ObjectID, hash string, changedAt time.Time) error {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{
			"password_hash":       hash,
			"password_changed_at": changedAt,
			"updated_at":          changedAt,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetToken records a pending password reset.
func (r *AccountRepository) SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expiresAt time.Time) error {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{
			"reset_token_hash": tokenHash,
			"reset_expires_at": expiresAt,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearResetToken removes a pending password reset. Used as the
// compensating action when the reset mail cannot be sent.
func (r *AccountRepository) ClearResetToken(ctx context.Context, id bson.ObjectID) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$unset": bson.M{
			"reset_token_hash": "",
			"reset_expires_at": "",
		}},
	)
	return err
}

// RedeemResetToken atomically consumes an unexpired reset token: it sets
// the new password hash, records the change time, and clears both reset
// fields in a single conditional update. A concurrent second redemption
// misses the filter and reports ErrNotFound.
func (r *AccountRepository) RedeemResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (types.Account, error) {
	var account types.Account
	err := r.coll.FindOneAndUpdate(
		ctx,
		bson.M{
			"reset_token_hash": tokenHash,
			"reset_expires_at": bson.M{"$gt": now},
			"active":           true,
		},
		bson.M{
			"$set": bson.M{
				"password_hash":       passwordHash,
				"password_changed_at": now,
				"updated_at":          now,
			},
			"$unset": bson.M{
				"reset_token_hash": "",
				"reset_expires_at": "",
			},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

// Deactivate soft-deletes an account. Every credential issued for it stops
// resolving immediately because request-path lookups require active=true.
func (r *AccountRepository) Deactivate(ctx context.Context, id bson.ObjectID) error {
	result, err := r.coll.UpdateOne(
		ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context, opts query.Options) ([]types.Account, int, error) {
	filter := buildFilter(bson.M{"active": true}, opts.Filter)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	cursor, err := r.coll.Find(ctx, filter, buildFindOptions(opts))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var accounts []types.Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, 0, err
	}
	return accounts, int(total), nil
}

func (r *AccountRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
