// Package catalog holds the read-only reward configuration: the daily task list,
// the withdrawal tiers and the fixed daily limits. A Catalog is built once at
// startup and shared between goroutines without locking.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"spinearn/models"
)

// Daily limits and fixed rewards. The users table carries CHECK constraints
// matching the counter bounds, so these are not configurable.
const (
	MaxFreeSpinsPerDay = 20
	MaxSpinAdsPerDay   = 10
	SpinsGainedPerAd   = 2
	MaxAdsPerDay       = 38
	PointsPerAd        = 20

	PointsPerReferralForReferrer = 20
	PointsPerReferralForReferred = 5
)

// Task is a daily, resettable completion reward
type Task struct {
	ID     int    `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Link   string `yaml:"link" json:"link"`
	Points int64  `yaml:"points" json:"points"`
}

// Tier is a permitted withdrawal amount
type Tier struct {
	Amount  int64 `yaml:"amount" json:"amount"`
	OneTime bool  `yaml:"one_time" json:"oneTime"`
}

// Catalog is the immutable task list and tier table
type Catalog struct {
	tasks     []Task
	tasksByID map[int]Task
	tiers     []Tier
}

type fileFormat struct {
	Tasks []Task `yaml:"tasks"`
	Tiers []Tier `yaml:"withdrawal_tiers"`
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(defaultTasks(), defaultTiers())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in catalog: %v", err))
	}
	return c
}

func defaultTasks() []Task {
	return []Task{
		{ID: 1, Name: "Telegram Channel Join 1", Link: "https://t.me/WatchSpinEarn", Points: 48},
		{ID: 2, Name: "Telegram Group Join", Link: "https://t.me/WatchSpinEarnchat", Points: 48},
		{ID: 3, Name: "Telegram Channel Join 2", Link: "https://t.me/ShopEarnHub4102h", Points: 48},
		{ID: 4, Name: "Telegram Channel Join 3", Link: "https://t.me/earningsceret", Points: 48},
		{ID: 5, Name: "Twitter Follow", Link: "https://x.com/watchspin4102h", Points: 48},
	}
}

func defaultTiers() []Tier {
	return []Tier{
		{Amount: 4600, OneTime: true},
		{Amount: 90000},
		{Amount: 170000},
		{Amount: 305000},
	}
}

// New validates and builds a catalog. Tasks and tiers are copied and sorted.
func New(tasks []Task, tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one withdrawal tier is required")
	}

	c := &Catalog{
		tasks:     make([]Task, len(tasks)),
		tasksByID: make(map[int]Task, len(tasks)),
		tiers:     make([]Tier, len(tiers)),
	}
	copy(c.tasks, tasks)
	copy(c.tiers, tiers)

	for _, task := range c.tasks {
		if task.ID <= 0 {
			return nil, fmt.Errorf("task id must be positive, got %d", task.ID)
		}
		if task.Name == "" {
			return nil, fmt.Errorf("task %d has no name", task.ID)
		}
		if task.Points <= 0 {
			return nil, fmt.Errorf("task %d must award a positive number of points", task.ID)
		}
		if _, dup := c.tasksByID[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %d", task.ID)
		}
		c.tasksByID[task.ID] = task
	}

	seen := make(map[int64]bool, len(c.tiers))
	for _, tier := range c.tiers {
		if tier.Amount <= 0 {
			return nil, fmt.Errorf("withdrawal tier amount must be positive, got %d", tier.Amount)
		}
		if seen[tier.Amount] {
			return nil, fmt.Errorf("duplicate withdrawal tier %d", tier.Amount)
		}
		seen[tier.Amount] = true
	}

	sort.Slice(c.tasks, func(i, j int) bool { return c.tasks[i].ID < c.tasks[j].ID })
	sort.Slice(c.tiers, func(i, j int) bool { return c.tiers[i].Amount < c.tiers[j].Amount })
	return c, nil
}

// LoadFile reads a YAML catalog. Sections left out of the file keep their defaults.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	tasks := f.Tasks
	if tasks == nil {
		tasks = defaultTasks()
	}
	tiers := f.Tiers
	if tiers == nil {
		tiers = defaultTiers()
	}
	return New(tasks, tiers)
}

// Tasks returns the catalog tasks ordered by id
func (c *Catalog) Tasks() []Task {
	out := make([]Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Task looks up a task by id
func (c *Catalog) Task(id int) (Task, bool) {
	task, ok := c.tasksByID[id]
	return task, ok
}

// Tiers returns the withdrawal tiers ordered by amount
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Tier looks up the tier matching amount exactly
func (c *Catalog) Tier(amount int64) (Tier, bool) {
	for _, tier := range c.tiers {
		if tier.Amount == amount {
			return tier, true
		}
	}
	return Tier{}, false
}

// NewTaskStatus returns a status map with every catalog task marked not completed
func (c *Catalog) NewTaskStatus() models.TaskStatus {
	status := make(models.TaskStatus, len(c.tasks))
	for _, task := range c.tasks {
		status[task.ID] = false
	}
	return status
}

// Normalize reshapes a persisted status map to exactly the catalog's task ids.
// Unknown ids are dropped and missing ids are added as not completed. The
// second return value reports whether anything had to change.
func (c *Catalog) Normalize(status models.TaskStatus) (models.TaskStatus, bool) {
	out := c.NewTaskStatus()
	changed := len(status) != len(out)
	for id, done := range status {
		if _, ok := c.tasksByID[id]; !ok {
			changed = true
			continue
		}
		out[id] = done
	}
	return out, changed
}
