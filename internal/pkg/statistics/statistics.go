package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/cache"
	"github.com/docquery/docquery/internal/pkg/database"
	"github.com/docquery/docquery/internal/pkg/plans"
)

const (
	CacheKeyUsersTotal     = "statistics:users:total"
	CacheKeyDocumentsTotal = "statistics:documents:total"
	CacheKeyQuestionsTotal = "statistics:questions:total"
	CacheKeyQuestionsDaily = "statistics:questions:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration        = 30 * time.Minute
)

// StatisticsData holds the dashboard counters.
type StatisticsData struct {
	TotalUsers     int `json:"total_users"`
	TotalDocuments int `json:"total_documents"`
	TotalQuestions int `json:"total_questions"`
	TodayQuestions int `json:"today_questions"`
}

// RevenueData is the plan distribution with derived monthly recurring revenue.
type RevenueData struct {
	MonthlyRevenue float64        `json:"monthly_revenue"`
	PayingUsers    int            `json:"paying_users"`
	PlanCounts     map[string]int `json:"plan_counts"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the periodic cache refresh is due.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the statistics cache when the interval elapsed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recounts all dashboard statistics and stores them.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var totalDocuments int64
	if err := db.Model(&models.Document{}).Count(&totalDocuments).Error; err != nil {
		log.Printf("Error counting total documents: %v", err)
		return err
	}

	var totalQuestions int64
	if err := db.Model(&models.Question{}).Count(&totalQuestions).Error; err != nil {
		log.Printf("Error counting total questions: %v", err)
		return err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)

	// Charged questions from the usage ledger, so the dashboard matches what
	// was billed even when an assistant call failed after admission.
	todayQuestions, err := repository.GetGlobalFactory().GetUsageEventRepository().
		CountByTypeSince(models.UsageTypeQuestion, todayStart)
	if err != nil {
		log.Printf("Error counting today's questions: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsersTotal, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyDocumentsTotal, strconv.FormatInt(totalDocuments, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyQuestionsTotal, strconv.FormatInt(totalQuestions, 10), CacheExpiration); err != nil {
		return err
	}
	dailyKey := fmt.Sprintf(CacheKeyQuestionsDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayQuestions, 10), CacheExpiration); err != nil {
		return err
	}

	return nil
}

// GetTotalUsers returns the user count from cache, falling back to the DB.
func GetTotalUsers() int {
	return cachedModelCount(CacheKeyUsersTotal, &models.User{})
}

func cachedModelCount(key string, model interface{}) int {
	val, err := cache.Get(key)
	if err == nil {
		if count, err := strconv.ParseInt(val, 10, 64); err == nil {
			return int(count)
		}
	}

	var count int64
	db := database.GetDB()
	if err := db.Model(model).Count(&count).Error; err != nil {
		log.Printf("Error counting %T: %v", model, err)
		return 0
	}
	if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
		log.Printf("Error caching count for %s: %v", key, err)
	}
	return int(count)
}

// GetTodayQuestions returns today's charged question count from cache,
// falling back to the usage ledger.
func GetTodayQuestions() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyQuestionsDaily, today)

	val, err := cache.Get(dailyKey)
	if err == nil {
		if count, err := strconv.ParseInt(val, 10, 64); err == nil {
			return int(count)
		}
	}

	todayStart, _ := time.Parse("2006-01-02", today)
	count, err := repository.GetGlobalFactory().GetUsageEventRepository().
		CountByTypeSince(models.UsageTypeQuestion, todayStart)
	if err != nil {
		log.Printf("Error counting today's questions: %v", err)
		return 0
	}
	if err := cache.Set(dailyKey, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's questions: %v", err)
	}
	return int(count)
}

// GetStatisticsData returns all dashboard counters, refreshing the cache if due.
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:     GetTotalUsers(),
		TotalDocuments: cachedModelCount(CacheKeyDocumentsTotal, &models.Document{}),
		TotalQuestions: cachedModelCount(CacheKeyQuestionsTotal, &models.Question{}),
		TodayQuestions: GetTodayQuestions(),
	}
}

// ComputeRevenue derives monthly recurring revenue from the plan distribution
// of active subscriptions and the plan catalog prices.
func ComputeRevenue(counts []repository.PlanStatusCount) RevenueData {
	data := RevenueData{PlanCounts: make(map[string]int)}
	for _, c := range counts {
		if c.Status != models.SubscriptionStatusActive {
			continue
		}
		data.PlanCounts[c.Plan] += int(c.Count)

		entry, err := plans.Lookup(c.Plan)
		if err != nil {
			continue
		}
		if entry.MonthlyPrice > 0 {
			data.PayingUsers += int(c.Count)
			data.MonthlyRevenue += entry.MonthlyPrice * float64(c.Count)
		}
	}
	return data
}
