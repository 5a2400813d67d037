package dal

import (
	"errors"
	"fmt"
)

const (
	ERR_FILE_TYPE_NOT_RECOGNIZED = `File type not recognized`
	ERR_CONCURRENT_OPERATION     = `An exception occurred while waiting for the completion of a concurrent operation on the same dataset`
	ERR_TRANSACTION              = `An exception occurred while closing the transaction`
)

// Raised while resolving a dataset from its source (network, I/O, unknown extension).
type FetchError struct {
	Message string
	Cause   error
}

func NewFetchError(cause error, format string, args ...interface{}) *FetchError {
	return &FetchError{
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func NewFileTypeNotRecognizedError(fileName string) *FetchError {
	return &FetchError{
		Message: fmt.Sprintf("%s: '%s'", ERR_FILE_TYPE_NOT_RECOGNIZED, fileName),
	}
}

func (self *FetchError) Error() string {
	if self.Cause != nil {
		return fmt.Sprintf("%s: %v", self.Message, self.Cause)
	}

	return self.Message
}

func (self *FetchError) Unwrap() error {
	return self.Cause
}

type ConversionUnavailableError struct {
	Type DatasetType
}

func (self *ConversionUnavailableError) Error() string {
	return fmt.Sprintf("Conversion service not available for dataset type: %v", self.Type)
}

// Raised by a converter that exists but could not convert a file.
type ConversionError struct {
	Source string
	Cause  error
}

func (self *ConversionError) Error() string {
	return fmt.Sprintf("An error occurred while converting '%s': %v", self.Source, self.Cause)
}

func (self *ConversionError) Unwrap() error {
	return self.Cause
}

type DatabaseError struct {
	Message string
	Cause   error
}

func NewDatabaseError(cause error, format string, args ...interface{}) *DatabaseError {
	return &DatabaseError{
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func (self *DatabaseError) Error() string {
	if self.Cause != nil {
		return fmt.Sprintf("%s: %v", self.Message, self.Cause)
	}

	return self.Message
}

func (self *DatabaseError) Unwrap() error {
	return self.Cause
}

type NotFoundError struct {
	Message string
}

func NewNotFoundError(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{
		Message: fmt.Sprintf(format, args...),
	}
}

func (self *NotFoundError) Error() string {
	return self.Message
}

type BadQueryError struct {
	Query string
	Cause error
}

func (self *BadQueryError) Error() string {
	if self.Cause != nil {
		return fmt.Sprintf("An error occurred while parsing the query: '%s': %v", self.Query, self.Cause)
	}

	return fmt.Sprintf("An error occurred while parsing the query: '%s'", self.Query)
}

func (self *BadQueryError) Unwrap() error {
	return self.Cause
}

// Wraps any failure of the atomic persist step of an ingestion.
type TransactionError struct {
	Cause error
}

func (self *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", ERR_TRANSACTION, self.Cause)
}

func (self *TransactionError) Unwrap() error {
	return self.Cause
}

// What every waiter on a dataset creation observes when that creation failed.
type ConcurrentOperationError struct {
	Cause error
}

func (self *ConcurrentOperationError) Error() string {
	return fmt.Sprintf("%s: %v", ERR_CONCURRENT_OPERATION, self.Cause)
}

func (self *ConcurrentOperationError) Unwrap() error {
	return self.Cause
}

func IsFetchErr(err error) bool {
	var e *FetchError
	return errors.As(err, &e)
}

func IsConversionUnavailableErr(err error) bool {
	var e *ConversionUnavailableError
	return errors.As(err, &e)
}

func IsConversionErr(err error) bool {
	var e *ConversionError
	return errors.As(err, &e)
}

func IsDatabaseErr(err error) bool {
	var e *DatabaseError
	return errors.As(err, &e)
}

func IsNotFoundErr(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsBadQueryErr(err error) bool {
	var e *BadQueryError
	return errors.As(err, &e)
}

func IsTransactionErr(err error) bool {
	var e *TransactionError
	return errors.As(err, &e)
}

func IsConcurrentOperationErr(err error) bool {
	var e *ConcurrentOperationError
	return errors.As(err, &e)
}
