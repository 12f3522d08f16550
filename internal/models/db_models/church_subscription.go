package db_models

import (
	"github.com/google/uuid"

	"churchhub/internal/entitlement"
)

type ChurchSubscription struct {
	SubscriptionFields
	ChurchID uuid.UUID `gorm:"type:uuid;index;not null"`

	MaxUsers        *int64
	CurrentUsers    int64
	MaxBranches     *int64
	CurrentBranches int64
	MaxMembers      *int64
	CurrentMembers  int64
}

func (s *ChurchSubscription) OwnerColumn() string { return "church_id" }

func (s *ChurchSubscription) limits() []limitField {
	return []limitField{
		{entitlement.LimitUsers, &s.MaxUsers, &s.CurrentUsers},
		{entitlement.LimitBranches, &s.MaxBranches, &s.CurrentBranches},
		{entitlement.LimitMembers, &s.MaxMembers, &s.CurrentMembers},
	}
}

func (s *ChurchSubscription) ToRecord() *entitlement.Record {
	return s.toRecord(entitlement.KindChurch, s.ChurchID, s.limits())
}

func (s *ChurchSubscription) FromRecord(rec *entitlement.Record) {
	s.ChurchID = rec.OwnerID
	s.fromRecord(rec, s.limits())
}
