package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/participant"
)

var byCreation = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// ── Patients ─────────────────────────────────────────────

// SavePatient upserts a patient by phone number. $setOnInsert keeps the
// first ID and creation time.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	_, err := s.db.Collection(colPatients).UpdateOne(ctx,
		bson.M{"phone_number": p.PhoneNumber},
		bson.M{
			"$set": bson.M{
				"name":       p.Name,
				"location":   p.Location,
				"updated_at": p.UpdatedAt.UTC(),
			},
			"$setOnInsert": bson.M{
				"_id":        p.ID.String(),
				"created_at": p.CreatedAt.UTC(),
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("carenest/mongo: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	var m patientModel
	err := s.db.Collection(colPatients).FindOne(ctx, bson.M{"phone_number": phone}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, carenest.ErrPatientNotFound
		}
		return nil, fmt.Errorf("carenest/mongo: get patient: %w", err)
	}
	return fromPatientModel(&m)
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	cursor, err := s.db.Collection(colPatients).Find(ctx, bson.M{}, options.Find().SetSort(byCreation))
	if err != nil {
		return nil, fmt.Errorf("carenest/mongo: list patients: %w", err)
	}
	var models []patientModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("carenest/mongo: list patients: %w", err)
	}
	out := make([]*participant.Patient, 0, len(models))
	for i := range models {
		p, err := fromPatientModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ── Helpers ──────────────────────────────────────────────

// SaveHelper upserts a helper by phone number.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	set := bson.M{
		"name":           h.Name,
		"address":        h.Address,
		"dob":            h.DOB.UTC(),
		"phone_verified": h.PhoneVerified,
		"otp_hash":       h.OTPHash,
		"otp_expires_at": nil,
		"updated_at":     h.UpdatedAt.UTC(),
	}
	if h.OTPExpiresAt != nil {
		set["otp_expires_at"] = h.OTPExpiresAt.UTC()
	}
	_, err := s.db.Collection(colHelpers).UpdateOne(ctx,
		bson.M{"phone_number": h.PhoneNumber},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"_id":        h.ID.String(),
				"created_at": h.CreatedAt.UTC(),
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("carenest/mongo: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	var m helperModel
	err := s.db.Collection(colHelpers).FindOne(ctx, bson.M{"phone_number": phone}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, carenest.ErrHelperNotFound
		}
		return nil, fmt.Errorf("carenest/mongo: get helper: %w", err)
	}
	return fromHelperModel(&m)
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	cursor, err := s.db.Collection(colHelpers).Find(ctx, bson.M{}, options.Find().SetSort(byCreation))
	if err != nil {
		return nil, fmt.Errorf("carenest/mongo: list helpers: %w", err)
	}
	var models []helperModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("carenest/mongo: list helpers: %w", err)
	}
	out := make([]*participant.Helper, 0, len(models))
	for i := range models {
		h, err := fromHelperModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
