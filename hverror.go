package rvhv

import (
	"fmt"
	"os"
	"strconv"
)

// Error codes for fatal hypervisor conditions.
const (
	RVH_SUCCESS          uint32 = 0x00000000
	RVH_ERROR            uint32 = 0x52480001
	RVH_BAD_ARGUMENT     uint32 = 0x52480002
	RVH_CLOSED           uint32 = 0x52480003
	RVH_LOAD_FAILED      uint32 = 0x52480004
	RVH_BAD_CALL         uint32 = 0x52480005
	RVH_UNSUPPORTED_CALL uint32 = 0x52480006
	RVH_BAD_SHUTDOWN     uint32 = 0x52480007
	RVH_UNHANDLED_TRAP   uint32 = 0x52480008
	RVH_NOT_SUPPORTED    uint32 = 0x5248000F
)

// HVError wraps a hypervisor error code.
type HVError struct {
	Code    uint32
	message string // Optional custom message for specific errors
}

func (e HVError) Error() string {
	// Use custom message if available
	if e.message != "" {
		return e.message
	}

	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// detailedError provides full error context for development
func (e HVError) detailedError() string {
	switch e.Code {
	case RVH_SUCCESS:
		return "rvhv: success"
	case RVH_ERROR:
		return "rvhv: general error (RVH_ERROR) - check machine configuration and API usage"
	case RVH_BAD_ARGUMENT:
		return "rvhv: invalid argument (RVH_BAD_ARGUMENT) - check parameter values and alignment"
	case RVH_CLOSED:
		return "rvhv: resource closed (RVH_CLOSED) - machine or address space already closed"
	case RVH_LOAD_FAILED:
		return "rvhv: guest image load failed (RVH_LOAD_FAILED) - check image path and size"
	case RVH_BAD_CALL:
		return "rvhv: undecodable environment call (RVH_BAD_CALL) - unknown SBI extension in A7"
	case RVH_UNSUPPORTED_CALL:
		return "rvhv: unsupported environment call (RVH_UNSUPPORTED_CALL) - SBI extension recognized but not implemented"
	case RVH_BAD_SHUTDOWN:
		return "rvhv: bad shutdown arguments (RVH_BAD_SHUTDOWN) - reset request argument pair did not match"
	case RVH_UNHANDLED_TRAP:
		return "rvhv: unhandled trap (RVH_UNHANDLED_TRAP) - trap cause outside the dispatched set"
	case RVH_NOT_SUPPORTED:
		return "rvhv: operation unsupported (RVH_NOT_SUPPORTED) - native guest entry unavailable on this platform"
	default:
		return fmt.Sprintf("rvhv: unknown error code 0x%08x", e.Code)
	}
}

// sanitizedError provides minimal error information for production
func (e HVError) sanitizedError() string {
	switch e.Code {
	case RVH_SUCCESS:
		return "rvhv: success"
	case RVH_ERROR:
		return "rvhv: general error"
	case RVH_BAD_ARGUMENT:
		return "rvhv: invalid argument"
	case RVH_CLOSED:
		return "rvhv: resource closed"
	case RVH_LOAD_FAILED:
		return "rvhv: guest image load failed"
	case RVH_BAD_CALL:
		return "rvhv: undecodable environment call"
	case RVH_UNSUPPORTED_CALL:
		return "rvhv: unsupported environment call"
	case RVH_BAD_SHUTDOWN:
		return "rvhv: bad shutdown arguments"
	case RVH_UNHANDLED_TRAP:
		return "rvhv: unhandled trap"
	case RVH_NOT_SUPPORTED:
		return "rvhv: operation unsupported"
	default:
		return "rvhv: hypervisor error"
	}
}

// isProductionEnv checks if we're running in production environment
func isProductionEnv() bool {
	env := os.Getenv("RVHV_ENV")
	if env == "production" || env == "prod" {
		return true
	}

	// Check if debug mode is explicitly disabled
	if debug := os.Getenv("RVHV_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}

	return false
}

// Common specific errors for API consumers
var (
	ErrMachineClosed    = &HVError{Code: RVH_CLOSED, message: "rvhv: machine is closed"}
	ErrMachineFinished  = &HVError{Code: RVH_CLOSED, message: "rvhv: machine already ran its guest"}
	ErrSpaceClosed      = &HVError{Code: RVH_CLOSED, message: "rvhv: address space is closed"}
	ErrInvalidAlignment = &HVError{Code: RVH_BAD_ARGUMENT, message: "rvhv: address not page-aligned"}
	ErrLoadFailed       = &HVError{Code: RVH_LOAD_FAILED, message: "rvhv: guest image load failed"}
	ErrBadCall          = &HVError{Code: RVH_BAD_CALL, message: "rvhv: undecodable environment call"}
	ErrUnsupportedCall  = &HVError{Code: RVH_UNSUPPORTED_CALL, message: "rvhv: unsupported environment call"}
	ErrBadShutdownArgs  = &HVError{Code: RVH_BAD_SHUTDOWN, message: "rvhv: bad shutdown arguments"}
	ErrUnhandledTrap    = &HVError{Code: RVH_UNHANDLED_TRAP, message: "rvhv: unhandled trap"}
	ErrNotSupported     = &HVError{Code: RVH_NOT_SUPPORTED, message: "rvhv: native guest entry not supported on this platform"}
)
