package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RoomType string

const (
	RoomSingle RoomType = "single"
	RoomDouble RoomType = "double"
	RoomSuite  RoomType = "suite"
)

func (t RoomType) IsValid() bool {
	switch t {
	case RoomSingle, RoomDouble, RoomSuite:
		return true
	}
	return false
}

type RoomStatus string

const (
	RoomAvailable RoomStatus = "available"
	RoomOccupied  RoomStatus = "occupied"
	RoomCleaning  RoomStatus = "cleaning"
)

func (s RoomStatus) IsValid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomCleaning:
		return true
	}
	return false
}

func ParseRoomStatus(raw string) (RoomStatus, error) {
	s := RoomStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown room status %q", raw)
	}
	return s, nil
}

type Room struct {
	ID          int64           `yaml:"id" json:"id"`
	Number      string          `yaml:"number" json:"number"`
	Type        RoomType        `yaml:"type" json:"type"`
	NightlyRate decimal.Decimal `yaml:"nightly_rate" json:"nightly_rate"`
	Status      RoomStatus      `yaml:"status" json:"status"`
	Floor       int             `yaml:"floor" json:"floor"`
	CreatedAt   time.Time       `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time       `yaml:"-" json:"updated_at"`
}

type RoomFilter struct {
	Type   RoomType
	Status RoomStatus
	// FreeFrom/FreeTo restrict the result to rooms with no blocking booking in [FreeFrom, FreeTo).
	FreeFrom time.Time
	FreeTo   time.Time
}
