package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/notify"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/internal/identity/store/drivers/sqlite"
	"github.com/asia-shop/identity/internal/identity/totp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()

	users := &UserService{Store: st}
	user, err := users.Register(context.Background(), email, email[:4]+"-user", "correct horse battery")
	require.NoError(t, err)
	return user
}

// fakeClock lets tests march time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMFAService(st store.Store, clock *fakeClock) *MFAService {
	return &MFAService{
		Store:  st,
		TOTP:   &totp.Engine{Issuer: "AsiaShop", Now: clock.Now},
		Logger: slog.Default(),
		Now:    clock.Now,
	}
}

// currentCode reads the pending or confirmed secret's code at the clock's time.
func currentCode(t *testing.T, s *MFAService, secret string) string {
	t.Helper()

	code, err := s.TOTP.CurrentCode(secret)
	require.NoError(t, err)
	return code
}

func enableMFA(t *testing.T, s *MFAService, userID string) (domain.MFASetupResponse, domain.MFAEnableResponse) {
	t.Helper()
	ctx := context.Background()

	setup, err := s.Setup(ctx, userID)
	require.NoError(t, err)

	enabled, err := s.Enable(ctx, userID, currentCode(t, s, setup.SecretKey))
	require.NoError(t, err)
	return setup, enabled
}

func TestSetupAndEnable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "alice@example.com")

	setup, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.SetupSessionID)
	require.NotEmpty(t, setup.SecretKey)
	require.Contains(t, setup.QRCodeURI, "otpauth://totp/")
	require.Contains(t, setup.FormattedSecretKey, " ")
	require.NotEmpty(t, setup.Instructions)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, status.IsEnabled)

	enabled, err := svc.Enable(ctx, user.ID, currentCode(t, svc, setup.SecretKey))
	require.NoError(t, err)
	require.True(t, enabled.IsEnabled)
	require.Len(t, enabled.BackupCodes, 10)
	require.Equal(t, 10, enabled.BackupCodesCount)
	require.NotEmpty(t, enabled.Warning)

	status, err = svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, status.IsEnabled)
	require.Equal(t, 10, status.BackupCodesRemaining)
	require.Contains(t, status.AvailableMethods, "TOTP")
	require.Contains(t, status.AvailableMethods, "BackupCode")

	// The setup session is gone; enabling again needs a fresh setup.
	_, err = svc.Enable(ctx, user.ID, currentCode(t, svc, setup.SecretKey))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnableRejectsWrongCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "bob@example.com")

	setup, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.Enable(ctx, user.ID, "000000")
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	// Failure does not burn the session; the correct code still works.
	_, err = svc.Enable(ctx, user.ID, currentCode(t, svc, setup.SecretKey))
	require.NoError(t, err)
}

func TestEnableFailsAfterSessionExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "carol@example.com")

	setup, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)

	code := currentCode(t, svc, setup.SecretKey)
	clock.Advance(11 * time.Minute)

	// The code itself may still be computable, but the session is dead.
	_, err = svc.Enable(ctx, user.ID, code)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetupReplacesPendingSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "dave@example.com")

	first, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)
	second, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.SecretKey, second.SecretKey)

	// The first secret no longer enables anything.
	_, err = svc.Enable(ctx, user.ID, currentCode(t, svc, first.SecretKey))
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = svc.Enable(ctx, user.ID, currentCode(t, svc, second.SecretKey))
	require.NoError(t, err)
}

func TestRegenerateQRReusesSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "erin@example.com")

	setup, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)

	again, err := svc.RegenerateQR(ctx, user.ID, setup.SetupSessionID)
	require.NoError(t, err)
	require.Equal(t, setup.SecretKey, again.SecretKey)
	require.Equal(t, setup.QRCodeURI, again.QRCodeURI)

	clock.Advance(11 * time.Minute)
	_, err = svc.RegenerateQR(ctx, user.ID, setup.SetupSessionID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "fred@example.com")

	_, enabled := enableMFA(t, svc, user.ID)
	code := enabled.BackupCodes[0]

	ok, err := svc.Verify(ctx, user.ID, domain.MethodBackupCode, code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Verify(ctx, user.ID, domain.MethodBackupCode, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 9, status.BackupCodesRemaining)
}

func TestRegenerateBackupCodesInvalidatesOldOnes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "gina@example.com")

	setup, enabled := enableMFA(t, svc, user.ID)

	fresh, err := svc.RegenerateBackupCodes(ctx, user.ID, currentCode(t, svc, setup.SecretKey))
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	// Old codes are dead, new ones work.
	ok, err := svc.Verify(ctx, user.ID, domain.MethodBackupCode, enabled.BackupCodes[0])
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)

	ok, err = svc.Verify(ctx, user.ID, domain.MethodBackupCode, fresh[0])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegenerateBackupCodesRequiresValidCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "hank@example.com")

	_, enabled := enableMFA(t, svc, user.ID)

	_, err := svc.RegenerateBackupCodes(ctx, user.ID, "000000")
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	// The vault is untouched.
	ok, err := svc.Verify(ctx, user.ID, domain.MethodBackupCode, enabled.BackupCodes[0])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyTOTPDrift(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "iris@example.com")

	setup, _ := enableMFA(t, svc, user.ID)
	code := currentCode(t, svc, setup.SecretKey)

	clock.Advance(30 * time.Second)
	ok, err := svc.Verify(ctx, user.ID, domain.MethodTOTP, code)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(60 * time.Second)
	ok, err = svc.Verify(ctx, user.ID, domain.MethodTOTP, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)
}

func TestVerifyWhenNotEnabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "jack@example.com")

	ok, err := svc.Verify(ctx, user.ID, domain.MethodTOTP, "123456")
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)
}

func TestDisableRequiresBothFactors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "kate@example.com")

	setup, enabled := enableMFA(t, svc, user.ID)

	t.Run("missing code is a policy violation", func(t *testing.T) {
		err := svc.Disable(ctx, user.ID, "correct horse battery", "", "")
		require.ErrorIs(t, err, domain.ErrPolicyViolation)
	})

	t.Run("missing password is a policy violation", func(t *testing.T) {
		err := svc.Disable(ctx, user.ID, "", currentCode(t, svc, setup.SecretKey), "")
		require.ErrorIs(t, err, domain.ErrPolicyViolation)
	})

	t.Run("wrong password fails and state stays enabled", func(t *testing.T) {
		err := svc.Disable(ctx, user.ID, "not the password", currentCode(t, svc, setup.SecretKey), "")
		require.ErrorIs(t, err, domain.ErrInvalidCode)

		status, err := svc.Status(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, status.IsEnabled)
	})

	t.Run("wrong code fails and state stays enabled", func(t *testing.T) {
		err := svc.Disable(ctx, user.ID, "correct horse battery", "000000", "")
		require.ErrorIs(t, err, domain.ErrInvalidCode)

		status, err := svc.Status(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, status.IsEnabled)
	})

	t.Run("backup code works as the second factor", func(t *testing.T) {
		err := svc.Disable(ctx, user.ID, "correct horse battery", enabled.BackupCodes[1], "")
		require.NoError(t, err)

		status, err := svc.Status(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, status.IsEnabled)
		require.Zero(t, status.BackupCodesRemaining)
	})
}

func TestDisableWithTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "liam@example.com")

	setup, _ := enableMFA(t, svc, user.ID)

	err := svc.Disable(ctx, user.ID, "correct horse battery", currentCode(t, svc, setup.SecretKey), "")
	require.NoError(t, err)

	// Disabled behaves as unconfigured: verify fails, setup starts over.
	ok, err := svc.Verify(ctx, user.ID, domain.MethodTOTP, currentCode(t, svc, setup.SecretKey))
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)

	_, err = svc.Setup(ctx, user.ID)
	require.NoError(t, err)
}

func TestDisableBlockedWhenEnforced(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "mona@example.com")

	setup, _ := enableMFA(t, svc, user.ID)

	profile, err := st.MFAProfiles().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	profile.IsEnforced = true
	require.NoError(t, st.MFAProfiles().UpdateChecked(ctx, profile))

	err = svc.Disable(ctx, user.ID, "correct horse battery", currentCode(t, svc, setup.SecretKey), "")
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestConcurrentRegenerateSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "nick@example.com")

	enableMFA(t, svc, user.ID)

	// Simulate a lost race: another writer bumps the version between this
	// reader's load and its checked write.
	stale, err := st.MFAProfiles().GetByUserID(ctx, user.ID)
	require.NoError(t, err)

	winner := stale
	winner.UpdatedAt = clock.Now()
	require.NoError(t, st.MFAProfiles().UpdateChecked(ctx, winner))

	err = st.MFAProfiles().UpdateChecked(ctx, stale)
	require.ErrorIs(t, err, store.ErrVersionMismatch)
}

func TestEndToEndLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	user := newTestUser(t, st, "zoe@example.com")

	setup, err := svc.Setup(ctx, user.ID)
	require.NoError(t, err)

	enabled, err := svc.Enable(ctx, user.ID, currentCode(t, svc, setup.SecretKey))
	require.NoError(t, err)
	require.True(t, enabled.IsEnabled)
	require.Equal(t, 10, enabled.BackupCodesCount)

	// Consume one backup code; it works once and only once.
	backup := enabled.BackupCodes[3]
	ok, err := svc.Verify(ctx, user.ID, domain.MethodBackupCode, backup)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Verify(ctx, user.ID, domain.MethodBackupCode, backup)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.False(t, ok)

	// Disable with correct password but wrong code fails, state untouched.
	err = svc.Disable(ctx, user.ID, "correct horse battery", "999999", "")
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, status.IsEnabled)
}

type capturingNotifier struct {
	mu        sync.Mutex
	lastCode  string
	templates []string
	fail      int
	calls     int
}

func (n *capturingNotifier) Send(_ context.Context, _, template string, vars map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.fail > 0 {
		n.fail--
		return context.DeadlineExceeded
	}
	n.templates = append(n.templates, template)
	n.lastCode = vars["code"]
	return nil
}

func (n *capturingNotifier) code() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastCode
}

func (n *capturingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.templates...)
}

var _ notify.Notifier = (*capturingNotifier)(nil)

func newEmailOTPService(st store.Store, clock *fakeClock, n notify.Notifier) *EmailOTPService {
	return &EmailOTPService{
		Store:    st,
		Notifier: n,
		Logger:   slog.Default(),
		Now:      clock.Now,
	}
}

func TestLifecycleTransitionsNotifyUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{}
	svc := newMFAService(st, clock)
	svc.Notifier = notifier
	user := newTestUser(t, st, "nora@example.com")

	setup, _ := enableMFA(t, svc, user.ID)
	require.Contains(t, notifier.sent(), notify.TemplateMFAEnabled)

	err := svc.Disable(ctx, user.ID, "correct horse battery", currentCode(t, svc, setup.SecretKey), "")
	require.NoError(t, err)
	require.Contains(t, notifier.sent(), notify.TemplateMFADisabled)
}

func TestEmailOTPRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{}
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "otto@example.com")

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	code := notifier.code()
	require.Len(t, code, 6)

	require.NoError(t, otps.Verify(ctx, user.ID, PurposeLogin, code))

	// Consumed; the same code cannot be replayed.
	err := otps.Verify(ctx, user.ID, PurposeLogin, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestEmailOTPExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{}
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "pam@example.com")

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	code := notifier.code()

	clock.Advance(6 * time.Minute)
	err := otps.Verify(ctx, user.ID, PurposeLogin, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestEmailOTPAttemptLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{}
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "quin@example.com")

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	code := notifier.code()

	for i := 0; i < 4; i++ {
		err := otps.Verify(ctx, user.ID, PurposeLogin, "000000")
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}

	// Fifth consecutive failure locks the code.
	err := otps.Verify(ctx, user.ID, PurposeLogin, "000000")
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)

	// Even the correct code is refused now.
	err = otps.Verify(ctx, user.ID, PurposeLogin, code)
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)

	// A fresh send resets the counter.
	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	require.NoError(t, otps.Verify(ctx, user.ID, PurposeLogin, notifier.code()))
}

func TestEmailOTPSupersedesPriorCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{}
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "ruth@example.com")

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	first := notifier.code()

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	second := notifier.code()

	if first != second {
		err := otps.Verify(ctx, user.ID, PurposeLogin, first)
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}
	require.NoError(t, otps.Verify(ctx, user.ID, PurposeLogin, second))
}

func TestEmailOTPDeliveryFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	notifier := &capturingNotifier{fail: 2} // both attempts fail
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "sven@example.com")

	err := otps.Send(ctx, user.ID, PurposeLogin)
	require.ErrorIs(t, err, domain.ErrDependencyFailure)
	require.Equal(t, 2, notifier.calls)

	// The stored code survives; a retried send replaces it cleanly.
	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	require.NoError(t, otps.Verify(ctx, user.ID, PurposeLogin, notifier.code()))
}

func TestEmailOTPAsLoginFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	svc := newMFAService(st, clock)
	notifier := &capturingNotifier{}
	otps := newEmailOTPService(st, clock, notifier)
	user := newTestUser(t, st, "tina@example.com")

	enableMFA(t, svc, user.ID)

	require.NoError(t, otps.Send(ctx, user.ID, PurposeLogin))
	ok, err := svc.Verify(ctx, user.ID, domain.MethodEmailOTP, notifier.code())
	require.NoError(t, err)
	require.True(t, ok)
}
