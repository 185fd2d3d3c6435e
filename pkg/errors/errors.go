package errors

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

// Is reports whether err is an Error carrying this code.
func (c Code[MT]) Is(err error) bool {
	e, ok := err.(Error)
	return ok && e.Code() == c.Code
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) GRPCStatus() *status.Status {
	return status.New(e.code.GrpcCode, e.Error())
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type AccountMetadata struct {
	Account  string `json:"account"`
	Expected string `json:"expected,omitempty"`
}

type AssetMetadata struct {
	AssetId uint64 `json:"asset_id"`
}

type LienMetadata struct {
	LienId string `json:"lien_id"`
}

type SlotMetadata struct {
	AssetId uint64 `json:"asset_id"`
	Slot    int    `json:"slot"`
}

type StateMetadata struct {
	AssetId uint64 `json:"asset_id"`
	State   string `json:"state"`
}

type WindowMetadata struct {
	AssetId  uint64 `json:"asset_id"`
	Deadline int64  `json:"deadline"`
	Now      int64  `json:"now"`
}

type FundsMetadata struct {
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Available uint64 `json:"available"`
	Required  uint64 `json:"required"`
}

type ProceedsMetadata struct {
	AssetId uint64 `json:"asset_id"`
	Price   uint64 `json:"price"`
	Fee     uint64 `json:"fee"`
	Liens   uint64 `json:"liens"`
}

type AssetMismatchMetadata struct {
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

type ProposalMetadata struct {
	AssetId  uint64 `json:"asset_id"`
	Proposed string `json:"proposed"`
	Got      string `json:"got"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}
var INVALID_ARGUMENT = Code[map[string]any]{1, "INVALID_ARGUMENT", grpccodes.InvalidArgument}
var UNAUTHORIZED = Code[AccountMetadata]{2, "UNAUTHORIZED", grpccodes.PermissionDenied}
var INVALID_STATE = Code[StateMetadata]{3, "INVALID_STATE", grpccodes.FailedPrecondition}
var WINDOW_CLOSED = Code[WindowMetadata]{4, "WINDOW_CLOSED", grpccodes.FailedPrecondition}

var WINDOW_STILL_OPEN = Code[WindowMetadata]{
	5,
	"WINDOW_STILL_OPEN",
	grpccodes.FailedPrecondition,
}

var INSUFFICIENT_FUNDS = Code[FundsMetadata]{
	6,
	"INSUFFICIENT_FUNDS",
	grpccodes.FailedPrecondition,
}

var INSUFFICIENT_ALLOWANCE = Code[FundsMetadata]{
	7,
	"INSUFFICIENT_ALLOWANCE",
	grpccodes.FailedPrecondition,
}

var INSUFFICIENT_PROCEEDS = Code[ProceedsMetadata]{
	8,
	"INSUFFICIENT_PROCEEDS",
	grpccodes.FailedPrecondition,
}
var LIEN_STACK_FULL = Code[AssetMetadata]{9, "LIEN_STACK_FULL", grpccodes.ResourceExhausted}
var ASSET_NOT_FOUND = Code[AssetMetadata]{10, "ASSET_NOT_FOUND", grpccodes.NotFound}
var LIEN_NOT_FOUND = Code[LienMetadata]{11, "LIEN_NOT_FOUND", grpccodes.NotFound}
var SALE_NOT_FOUND = Code[AssetMetadata]{12, "SALE_NOT_FOUND", grpccodes.NotFound}

var ASSET_MISMATCH = Code[AssetMismatchMetadata]{
	13,
	"ASSET_MISMATCH",
	grpccodes.InvalidArgument,
}
var STALE_PROPOSAL = Code[ProposalMetadata]{14, "STALE_PROPOSAL", grpccodes.FailedPrecondition}

var TRANSFER_NOT_PERMITTED = Code[AccountMetadata]{
	15,
	"TRANSFER_NOT_PERMITTED",
	grpccodes.PermissionDenied,
}
var ALREADY_BOUGHT = Code[StateMetadata]{16, "ALREADY_BOUGHT", grpccodes.FailedPrecondition}

var SALE_ALREADY_ACTIVE = Code[StateMetadata]{
	17,
	"SALE_ALREADY_ACTIVE",
	grpccodes.AlreadyExists,
}
var SLOT_EMPTY = Code[SlotMetadata]{18, "SLOT_EMPTY", grpccodes.FailedPrecondition}
var LIEN_ALREADY_ATTACHED = Code[LienMetadata]{19, "LIEN_ALREADY_ATTACHED", grpccodes.FailedPrecondition}
