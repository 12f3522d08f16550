package db_models

import (
	"github.com/google/uuid"

	"churchhub/internal/entitlement"
)

type UserSubscription struct {
	SubscriptionFields
	UserID uuid.UUID `gorm:"type:uuid;index;not null"`

	MaxSmallGroupsLead     *int64
	CurrentSmallGroupsLead int64
	MaxEventsManage        *int64
	CurrentEventsManage    int64
}

func (s *UserSubscription) OwnerColumn() string { return "user_id" }

func (s *UserSubscription) limits() []limitField {
	return []limitField{
		{entitlement.LimitSmallGroupsLead, &s.MaxSmallGroupsLead, &s.CurrentSmallGroupsLead},
		{entitlement.LimitEventsManage, &s.MaxEventsManage, &s.CurrentEventsManage},
	}
}

func (s *UserSubscription) ToRecord() *entitlement.Record {
	return s.toRecord(entitlement.KindUser, s.UserID, s.limits())
}

func (s *UserSubscription) FromRecord(rec *entitlement.Record) {
	s.UserID = rec.OwnerID
	s.fromRecord(rec, s.limits())
}
