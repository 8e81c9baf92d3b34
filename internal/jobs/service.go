package jobs

import (
	"context"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
	"github.com/bandwatch/bandwatch/internal/models"
	"github.com/bandwatch/bandwatch/internal/panel"
	"github.com/bandwatch/bandwatch/internal/scheduler"
	"github.com/bandwatch/bandwatch/internal/store"
	"github.com/bandwatch/bandwatch/internal/telegram"
)

// settingLastUsageCheck persists the usage-warning gate across restarts.
const settingLastUsageCheck = "jobs.last_usage_warning_check"

// Service owns the recurring job bodies. Each body is independent: it pulls
// the account list (served from the panel client's TTL cache within a tick),
// touches the store, and notifies through the transport.
type Service struct {
	panel   *panel.Client
	store   *store.SQLiteStore
	bot     telegram.BotAPI
	updater *telegram.Updater
	cfg     config.SchedulerConfig
	admins  []int64
	delay   time.Duration
	loc     *time.Location
	logger  *logging.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// NewService wires the job bodies. bot may be nil when notifications are
// disabled; jobs then do their bookkeeping silently.
func NewService(p *panel.Client, st *store.SQLiteStore, bot telegram.BotAPI, cfg config.SchedulerConfig, tg config.TelegramConfig, loc *time.Location, logger *logging.Logger, m *metrics.Metrics) *Service {
	var updater *telegram.Updater
	if bot != nil {
		updater = telegram.NewUpdater(bot, st, logger)
	}

	return &Service{
		panel:   p,
		store:   st,
		bot:     bot,
		updater: updater,
		cfg:     cfg,
		admins:  tg.AdminChatIDs,
		delay:   tg.SendDelay,
		loc:     loc,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// RegisterAll attaches every job to the engine. Registration order is run
// order within a tick: snapshots first so the reporting jobs see fresh data.
func (s *Service) RegisterAll(engine *scheduler.Engine) {
	engine.Register("collect_snapshots", scheduler.Every(time.Hour), s.CollectSnapshots)
	engine.Register("usage_warnings", scheduler.Every(time.Hour), s.CheckUsageWarnings)
	engine.Register("expiry_warnings", scheduler.DailyAt(s.cfg.ExpiryWarningTime, s.loc), s.CheckExpiryWarnings)
	engine.Register("backup_report", scheduler.DailyAt(s.cfg.BackupReportTime, s.loc), s.BackupReport)
	engine.Register("nightly_report", scheduler.DailyAt(s.cfg.ReportTime, s.loc), s.NightlyReport)
	engine.Register("online_report", scheduler.Every(time.Duration(s.cfg.OnlineReportHours)*time.Hour), s.RefreshOnlineReports)
	engine.Register("birthday_gifts", scheduler.DailyAt(s.cfg.Birthday.Time, s.loc), s.GrantBirthdayGifts)
	engine.Register("monthly_vacuum", scheduler.MonthlyOn(1, s.cfg.VacuumTime, s.loc), s.MonthlyVacuum)
}

// CollectSnapshots records one usage reading per registered account.
func (s *Service) CollectSnapshots(ctx context.Context) error {
	accounts, err := s.panel.FetchAccounts(ctx)
	if err != nil {
		return err
	}

	registered, err := s.store.ActiveAccounts()
	if err != nil {
		return err
	}
	s.metrics.SetAccountsTracked(len(registered))

	byUUID := make(map[string]models.Account, len(accounts))
	for _, acc := range accounts {
		byUUID[acc.UUID] = acc
	}

	takenAt := s.now().UTC()
	recorded := 0
	for _, reg := range registered {
		acc, ok := byUUID[reg.UUID]
		if !ok {
			s.logger.WarnWithContext(ctx, "registered account missing from panel", "uuid", reg.UUID)
			continue
		}
		if err := s.store.AddSnapshot(reg.ID, acc.CurrentUsageGB, takenAt); err != nil {
			return err
		}
		s.metrics.RecordSnapshot()
		recorded++
	}

	s.logger.InfoWithContext(ctx, "snapshots collected", "recorded", recorded, "registered", len(registered))
	return nil
}

// CheckUsageWarnings alerts admins about accounts nearing their quota. The
// hourly cadence is further gated by a persisted marker so the check runs at
// most once every configured number of hours, surviving restarts.
func (s *Service) CheckUsageWarnings(ctx context.Context) error {
	if !s.cfg.UsageWarnings.Enabled || s.bot == nil {
		return nil
	}

	gate := time.Duration(s.cfg.UsageWarnings.CheckHours) * time.Hour
	if last, ok := s.store.Settings().GetTime(settingLastUsageCheck); ok {
		if s.now().Sub(last) < gate {
			return nil
		}
	}

	accounts, err := s.panel.FetchAccounts(ctx)
	if err != nil {
		return err
	}

	threshold := s.cfg.UsageWarnings.ThresholdPercent
	var nearLimit []models.Account
	for _, acc := range accounts {
		if !acc.IsActive {
			continue
		}
		if acc.UsagePercent < threshold || acc.UsagePercent >= 100 {
			continue
		}
		nearLimit = append(nearLimit, acc)
	}

	// Each admin gets one aggregated message per run, not one per account.
	if len(nearLimit) > 0 {
		text := usageWarningsText(nearLimit)
		for _, chatID := range s.admins {
			s.send(ctx, "usage_warning", chatID, text)
		}
	}

	if err := s.store.Settings().SetTime(settingLastUsageCheck, s.now()); err != nil {
		return err
	}

	s.logger.InfoWithContext(ctx, "usage warnings checked", "near_limit", len(nearLimit), "threshold_percent", threshold)
	return nil
}

// CheckExpiryWarnings notifies owners whose accounts expire within the
// configured horizon. Each recipient gets at most one message per run,
// listing all of their expiring accounts; accounts without a local owner
// fall back to the admin chats.
func (s *Service) CheckExpiryWarnings(ctx context.Context) error {
	if s.bot == nil {
		return nil
	}

	accounts, err := s.panel.FetchAccounts(ctx)
	if err != nil {
		return err
	}

	owners, err := s.store.OwnersByUUID()
	if err != nil {
		return err
	}

	byRecipient := make(map[int64][]models.Account)
	for _, acc := range accounts {
		if !acc.IsActive || !acc.Expiring(s.cfg.ExpiryWarningDays) {
			continue
		}

		if ownerID, ok := owners[acc.UUID]; ok {
			owner, err := s.store.Owner(ownerID)
			if err != nil {
				return err
			}
			if owner != nil && !owner.ExpiryWarnings {
				continue
			}
			byRecipient[ownerID] = append(byRecipient[ownerID], acc)
			continue
		}
		for _, chatID := range s.admins {
			byRecipient[chatID] = append(byRecipient[chatID], acc)
		}
	}

	for chatID, expiring := range byRecipient {
		s.send(ctx, "expiry_warning", chatID, expiryWarningsText(expiring))
	}

	s.logger.InfoWithContext(ctx, "expiry warnings checked", "recipients", len(byRecipient), "within_days", s.cfg.ExpiryWarningDays)
	return nil
}

// NightlyReport delivers each opted-in owner their accounts' usage since the
// last civil midnight, then purges the consumed snapshots per account. A
// failed delivery keeps that owner's snapshots for the next run.
func (s *Service) NightlyReport(ctx context.Context) error {
	return s.deliverDailyReports(ctx, "nightly_report")
}

// BackupReport is a second daily run of the usage report at an earlier hour.
// Same semantics as the nightly run: delivered data is purged, so the later
// run reports what accumulated since this one.
func (s *Service) BackupReport(ctx context.Context) error {
	return s.deliverDailyReports(ctx, "backup_report")
}

// deliverDailyReports sends per-owner usage-since-midnight reports. Only an
// owner whose report was actually delivered has their accounts' snapshots
// purged.
func (s *Service) deliverDailyReports(ctx context.Context, kind string) error {
	if s.bot == nil {
		return nil
	}

	ownersList, err := s.store.Owners()
	if err != nil {
		return err
	}

	registered, err := s.store.ActiveAccounts()
	if err != nil {
		return err
	}

	byOwner := make(map[int64][]models.RegisteredAccount)
	for _, reg := range registered {
		byOwner[reg.OwnerID] = append(byOwner[reg.OwnerID], reg)
	}

	day := s.now().In(s.loc)
	for _, owner := range ownersList {
		if !owner.DailyReports {
			continue
		}
		regs := byOwner[owner.ChatID]
		if len(regs) == 0 {
			continue
		}

		lines := make([]reportLine, 0, len(regs))
		for _, reg := range regs {
			usage, err := s.store.UsageSinceMidnight(reg.ID)
			if err != nil {
				return err
			}
			lines = append(lines, reportLine{Name: reg.Name, UsageGB: usage})
		}

		if !s.send(ctx, kind, owner.ChatID, dailyReportText(lines, day)) {
			continue
		}

		var purged int64
		for _, reg := range regs {
			n, err := s.store.PurgeAccountSnapshots(reg.ID)
			if err != nil {
				return err
			}
			purged += n
		}
		s.metrics.RecordPurge(int(purged))
		s.logger.InfoWithContext(ctx, "daily report delivered", "kind", kind, "chat_id", owner.ChatID, "snapshots_purged", purged)
	}

	return nil
}

// RefreshOnlineReports maintains one live status message per admin chat with
// the currently-online accounts and their usage since midnight. Existing
// messages are edited in place.
func (s *Service) RefreshOnlineReports(ctx context.Context) error {
	if s.updater == nil {
		return nil
	}

	online, err := s.panel.OnlineAccounts(ctx)
	if err != nil {
		return err
	}

	usage := make(map[string]float64)
	for _, acc := range online {
		reg, err := s.store.AccountByUUID(acc.UUID)
		if err != nil {
			return err
		}
		if reg == nil {
			continue
		}
		gb, err := s.store.UsageSinceMidnight(reg.ID)
		if err != nil {
			return err
		}
		usage[acc.UUID] = gb
	}

	text := onlineReportText(online, usage, s.now().In(s.loc))
	for _, chatID := range s.admins {
		if err := s.updater.Upsert(models.JobTypeOnlineReport, chatID, text); err != nil {
			s.metrics.RecordNotification("online_report", "error")
			s.logger.WarnWithContext(ctx, "online report update failed", "chat_id", chatID, "error", err.Error())
			continue
		}
		s.metrics.RecordNotification("online_report", "success")
		s.pause()
	}
	return nil
}

// GrantBirthdayGifts tops up every account of owners whose birthday is
// today, then congratulates them.
func (s *Service) GrantBirthdayGifts(ctx context.Context) error {
	gift := s.cfg.Birthday
	if gift.GiftGB == 0 && gift.GiftDays == 0 {
		return nil
	}

	today := s.now().In(s.loc)
	celebrants, err := s.store.BirthdaysOn(today.Month(), today.Day())
	if err != nil {
		return err
	}
	if len(celebrants) == 0 {
		return nil
	}

	registered, err := s.store.ActiveAccounts()
	if err != nil {
		return err
	}
	byOwner := make(map[int64][]models.RegisteredAccount)
	for _, reg := range registered {
		byOwner[reg.OwnerID] = append(byOwner[reg.OwnerID], reg)
	}

	for _, owner := range celebrants {
		granted := 0
		for _, reg := range byOwner[owner.ChatID] {
			if err := s.panel.AddUsageAndDays(ctx, reg.UUID, gift.GiftGB, gift.GiftDays); err != nil {
				s.logger.WarnWithContext(ctx, "birthday gift failed", "uuid", reg.UUID, "error", err.Error())
				continue
			}
			granted++
		}
		if granted == 0 {
			continue
		}
		if s.bot != nil {
			s.send(ctx, "birthday", owner.ChatID, birthdayText(owner.FirstName, gift.GiftGB, gift.GiftDays))
		}
		s.logger.InfoWithContext(ctx, "birthday gifts granted", "chat_id", owner.ChatID, "accounts", granted)
	}
	return nil
}

// MonthlyVacuum compacts the database on the first of each month.
func (s *Service) MonthlyVacuum(ctx context.Context) error {
	before, err := s.store.SnapshotCount()
	if err != nil {
		return err
	}
	if err := s.store.Vacuum(); err != nil {
		return err
	}
	s.logger.InfoWithContext(ctx, "database vacuumed", "snapshots", before)
	return nil
}

// send delivers one notification and reports success. Failures are logged
// and counted but never abort the run.
func (s *Service) send(ctx context.Context, kind string, chatID int64, text string) bool {
	if _, err := s.bot.Send(chatID, text); err != nil {
		s.metrics.RecordNotification(kind, "error")
		s.logger.WarnWithContext(ctx, "notification failed", "kind", kind, "chat_id", chatID, "error", err.Error())
		return false
	}
	s.metrics.RecordNotification(kind, "success")
	s.pause()
	return true
}

// pause spaces out consecutive sends to stay under transport rate limits.
func (s *Service) pause() {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}
