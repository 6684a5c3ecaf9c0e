package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/mastgate/internal/device"
)

// BLEService represents a GATT service and its characteristics
type BLEService struct {
	uuid            string
	Characteristics map[string]*BLECharacteristic
}

func newService(owner *Client, s *ble.Service) *BLEService {
	svc := &BLEService{
		uuid:            device.NormalizeUUID(s.UUID.String()),
		Characteristics: make(map[string]*BLECharacteristic, len(s.Characteristics)),
	}
	for _, c := range s.Characteristics {
		char := newCharacteristic(owner, c)
		svc.Characteristics[char.UUID()] = char
	}
	return svc
}

func (s *BLEService) UUID() string {
	return s.uuid
}

// GetCharacteristic looks up a characteristic of this service by UUID.
func (s *BLEService) GetCharacteristic(uuid string) (device.Characteristic, error) {
	char, ok := s.Characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
	}
	return char, nil
}
