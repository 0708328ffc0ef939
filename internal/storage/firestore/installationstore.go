// Package firestore persists installations in Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// CollectionName is the root collection installations are stored in.
const CollectionName = "installations"

// maxTagFilter is the Firestore limit on array-contains-any values.
const maxTagFilter = 30

// InstallationStore implements delivery.InstallationStore on Firestore.
type InstallationStore struct {
	client *firestore.Client
	now    func() time.Time
}

func NewInstallationStore(client *firestore.Client) *InstallationStore {
	return &InstallationStore{client: client, now: time.Now}
}

// installationRecord is the document shape at installations/{hash(id)}.
type installationRecord struct {
	InstallationID string    `firestore:"installation_id"`
	Platform       string    `firestore:"platform"`
	PushChannel    string    `firestore:"push_channel"`
	Tags           []string  `firestore:"tags"`
	Audience       []string  `firestore:"audience"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

func (r installationRecord) toInstallation() (push.Installation, error) {
	platform, err := push.ParsePlatform(r.Platform)
	if err != nil {
		return push.Installation{}, err
	}
	return push.Installation{
		InstallationID: r.InstallationID,
		Platform:       platform,
		PushChannel:    r.PushChannel,
		Tags:           r.Tags,
	}, nil
}

// Upsert overwrites the whole document: last write wins, no merge.
func (s *InstallationStore) Upsert(ctx context.Context, installation push.Installation) error {
	record := installationRecord{
		InstallationID: installation.InstallationID,
		Platform:       installation.Platform.String(),
		PushChannel:    installation.PushChannel,
		Tags:           installation.Tags,
		Audience:       audience(installation),
		UpdatedAt:      s.now().UTC(),
	}
	if _, err := s.docRef(installation.InstallationID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert installation %s: %w", installation.InstallationID, err)
	}
	return nil
}

func (s *InstallationStore) Get(ctx context.Context, ids []string) ([]push.Installation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.docRef(id))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("firestore get failed: %w", err)
	}

	out := make([]push.Installation, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		installation, ok := decode(snap)
		if !ok {
			continue
		}
		out = append(out, installation)
	}
	return out, nil
}

// ListByTags matches an installation's own tags and its platform bucket tag.
func (s *InstallationStore) ListByTags(ctx context.Context, platform push.Platform, tags []string) ([]push.Installation, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if len(tags) > maxTagFilter {
		return nil, fmt.Errorf("%w: at most %d tags per lookup", push.ErrValidation, maxTagFilter)
	}
	query := s.collection().
		Where("platform", "==", platform.String()).
		Where("audience", "array-contains-any", tags)
	return s.collect(query.Documents(ctx))
}

func (s *InstallationStore) List(ctx context.Context, limit int) ([]push.Installation, error) {
	query := s.collection().Query
	if limit > 0 {
		query = query.Limit(limit)
	}
	return s.collect(query.Documents(ctx))
}

func (s *InstallationStore) Delete(ctx context.Context, installationID string) error {
	_, err := s.docRef(installationID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete installation %s: %w", installationID, err)
	}
	return nil
}

// --- Helpers ---

func (s *InstallationStore) collect(iter *firestore.DocumentIterator) ([]push.Installation, error) {
	defer iter.Stop()

	var out []push.Installation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		installation, ok := decode(doc)
		if !ok {
			continue
		}
		out = append(out, installation)
	}
	return out, nil
}

// decode skips corrupt documents rather than failing the whole read.
func decode(doc *firestore.DocumentSnapshot) (push.Installation, bool) {
	var record installationRecord
	if err := doc.DataTo(&record); err != nil {
		return push.Installation{}, false
	}
	installation, err := record.toInstallation()
	if err != nil {
		return push.Installation{}, false
	}
	return installation, true
}

func (s *InstallationStore) collection() *firestore.CollectionRef {
	return s.client.Collection(CollectionName)
}

// docRef hashes the id so arbitrary caller ids are valid document names.
func (s *InstallationStore) docRef(installationID string) *firestore.DocumentRef {
	return s.collection().Doc(hashID(installationID))
}

// audience is the indexed tag set: the installation's tags plus its bucket tag.
func audience(installation push.Installation) []string {
	out := make([]string, 0, len(installation.Tags)+1)
	out = append(out, installation.Tags...)
	if bucket := installation.Platform.BucketTag(); bucket != "" && !installation.HasTag(bucket) {
		out = append(out, bucket)
	}
	return out
}

func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
