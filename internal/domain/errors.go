package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionSetNotFound indicates a share token resolves to nothing.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrProgressNotFound is returned when no progress row exists for (session, user).
	ErrProgressNotFound = errors.New("progress record not found")
	// ErrAttemptCompleted blocks a non-completing upsert over a completed attempt.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrSetIncomplete is returned when a set is submitted with unanswered questions.
	ErrSetIncomplete = errors.New("question set has unanswered questions")
	// ErrSkipDisabled blocks arbitrary question navigation when the setting is off.
	ErrSkipDisabled = errors.New("question skipping is disabled")
	// ErrInvalidOption indicates a selected letter is not among the question's options.
	ErrInvalidOption = errors.New("selected option not found")
	// ErrQuestionOutOfRange indicates a question index outside the current set.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrNotManager blocks broadcast and lifecycle actions from non-managers.
	ErrNotManager = errors.New("caller is not a session manager")
	// ErrNotConnected blocks broadcasts from clients without a live channel.
	ErrNotConnected = errors.New("client is not subscribed to the channel")
	// ErrInvalidTransition rejects an illegal session status change.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrUnknownStep rejects a preparation broadcast with an unrecognized step.
	ErrUnknownStep = errors.New("unknown preparation step")
	// ErrMalformedUpdate rejects a preparation patch missing its step's required fields.
	ErrMalformedUpdate = errors.New("malformed preparation update")
	// ErrMemberNotFound is returned when a user is not a member of a group.
	ErrMemberNotFound = errors.New("group member not found")
	// ErrRunNotFound is returned when no active quiz run exists for (session, user).
	ErrRunNotFound = errors.New("quiz run not found")
	// ErrRunCompleted blocks mutations on an already-finished run.
	ErrRunCompleted = errors.New("quiz run already completed")
)
