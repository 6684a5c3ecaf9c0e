// Package device defines the capabilities the gateway consumes from a
// Bluetooth Low Energy (BLE) host stack in the central role.
//
// It covers:
//   - Scanning for advertisements with explicit radio parameters
//   - A bounded pool of central-role clients (lookup, create, delete, reconnect)
//   - GATT service and characteristic resolution by UUID
//   - Characteristic read, write and notification subscription
//   - The target Identity matcher used while scanning
//
// The go-ble subpackage provides the production implementation.
package device
