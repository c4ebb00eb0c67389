package store

import (
	"context"
	"errors"

	"finwise/internal/core"
	"finwise/internal/log"
)

// SignIn sets the profile. With remember set, a global snapshot is kept so
// the profile is restored when the device-scoped copy is missing.
func (s *Store) SignIn(ctx context.Context, profile core.UserProfile, remember bool) error {
	s.mu.Lock()
	err := s.setProfileLocked(ctx, &profile)
	if remember {
		err = errors.Join(err, s.writeJSON(ctx, KeyRememberedUser, s.profile))
	}
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, CollectionSession, "sign_in", "")
	return err
}

// SignOut forgets both the profile and the remembered snapshot.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	err := errors.Join(
		s.setProfileLocked(ctx, nil),
		s.deleteKey(ctx, KeyRememberedUser),
	)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, CollectionSession, "sign_out", "")
	return err
}

func (s *Store) CompleteOnboarding(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboarded = true
	return s.write(ctx, KeyOnboardingCompleted, sentinelTrue)
}

func (s *Store) OnboardingCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onboarded
}

func (s *Store) MarkWelcomeSeen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcomed = true
	return s.write(ctx, KeyHasSeenWelcome, sentinelTrue)
}

func (s *Store) HasSeenWelcome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcomed
}

// Reset clears every key the store and assistant own, including the
// device id, then initializes a fresh device.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	old := s.deviceID
	keys := append(DeviceKeys(old),
		KeyRememberedUser,
		KeyOnboardingCompleted,
		KeyHasSeenWelcome,
		KeyDeviceID,
	)
	var errs []error
	for _, key := range keys {
		if err := s.deleteKey(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.initLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	deviceID := s.deviceID
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Cleared device data",
		"previous_device_id", old,
		log.FieldDeviceID, deviceID,
		log.FieldOperation, log.OpReset)
	s.notify(ctx, old, CollectionDevice, OpReset, deviceID)
	return errors.Join(errs...)
}
