package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
	infracache "github.com/asakaida/yakuwari/internal/infrastructure/cache"
	"github.com/asakaida/yakuwari/internal/infrastructure/config"
	"github.com/asakaida/yakuwari/internal/infrastructure/database"
	"github.com/asakaida/yakuwari/internal/infrastructure/metrics"
	"github.com/asakaida/yakuwari/internal/repositories/postgres"
	"github.com/asakaida/yakuwari/internal/services/authorization"
	"github.com/asakaida/yakuwari/pkg/cache"
	"github.com/asakaida/yakuwari/pkg/cache/memorycache"
	"github.com/asakaida/yakuwari/pkg/cache/rediscache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	envFlag string
	pg      *database.Postgres
	manager *authorization.Manager
	backend cache.Cache
	watcher *infracache.GraphWatcher

	descriptionFlag string
	ruleFlag        string
	typeFlag        string
	configFlag      string
	paramsFlag      string
	metricsPortFlag int
)

var rootCmd = &cobra.Command{
	Use:   "yakuwari",
	Short: "Administration tool for the Yakuwari authorization database",
	Long: `Administration tool for the Yakuwari authorization database.
Manages roles, permissions, hierarchy edges, rules, and user assignments.`,
	PersistentPreRun: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pg != nil {
			pg.Close()
		}
	},
}

var itemAddCmd = &cobra.Command{
	Use:   "add-item <name>",
	Short: "Create a role or permission",
	Args:  cobra.ExactArgs(1),
	Run:   runAddItem,
}

var itemRemoveCmd = &cobra.Command{
	Use:   "remove-item <name>",
	Short: "Delete an item along with its edges and assignments",
	Args:  cobra.ExactArgs(1),
	Run:   runRemoveItem,
}

var itemListCmd = &cobra.Command{
	Use:   "list-items",
	Short: "List all roles and permissions",
	Run:   runListItems,
}

var childAddCmd = &cobra.Command{
	Use:   "add-child <parent> <child>",
	Short: "Add a hierarchy edge",
	Args:  cobra.ExactArgs(2),
	Run:   runAddChild,
}

var childRemoveCmd = &cobra.Command{
	Use:   "remove-child <parent> <child>",
	Short: "Remove a hierarchy edge",
	Args:  cobra.ExactArgs(2),
	Run:   runRemoveChild,
}

var ruleAddCmd = &cobra.Command{
	Use:   "add-rule <name> <kind>",
	Short: "Create a rule",
	Args:  cobra.ExactArgs(2),
	Run:   runAddRule,
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove-rule <name>",
	Short: "Delete a rule, clearing references from items",
	Args:  cobra.ExactArgs(1),
	Run:   runRemoveRule,
}

var assignCmd = &cobra.Command{
	Use:   "assign <role> <user>",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	Run:   runAssign,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <role> <user>",
	Short: "Revoke a role from a user",
	Args:  cobra.ExactArgs(2),
	Run:   runRevoke,
}

var revokeAllCmd = &cobra.Command{
	Use:   "revoke-all <user>",
	Short: "Revoke every role from a user",
	Args:  cobra.ExactArgs(1),
	Run:   runRevokeAll,
}

var checkCmd = &cobra.Command{
	Use:   "check <user> <permission>",
	Short: "Check whether a user holds a permission",
	Args:  cobra.ExactArgs(2),
	Run:   runCheck,
}

var rolesCmd = &cobra.Command{
	Use:   "roles <user>",
	Short: "List the roles a user holds, inherited included",
	Args:  cobra.ExactArgs(1),
	Run:   runRoles,
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions <user>",
	Short: "List the permissions a user holds, inherited included",
	Args:  cobra.ExactArgs(1),
	Run:   runPermissions,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a long-lived process serving Prometheus metrics",
	Long: `Run as a long-lived process serving Prometheus metrics on /metrics.
Listens for graph change notifications from other processes and drops the
resident snapshot so subsequent checks see fresh data.`,
	Run: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	itemAddCmd.Flags().StringVarP(&typeFlag, "type", "t", "role", "Item type (role or permission)")
	itemAddCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "Item description")
	itemAddCmd.Flags().StringVarP(&ruleFlag, "rule", "r", "", "Rule name attached to the item")
	ruleAddCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Rule config as JSON")
	checkCmd.Flags().StringVarP(&paramsFlag, "params", "p", "", "Check parameters as JSON")
	serveCmd.Flags().IntVar(&metricsPortFlag, "metrics-port", 9090, "Port for the Prometheus /metrics endpoint")

	rootCmd.AddCommand(itemAddCmd)
	rootCmd.AddCommand(itemRemoveCmd)
	rootCmd.AddCommand(itemListCmd)
	rootCmd.AddCommand(childAddCmd)
	rootCmd.AddCommand(childRemoveCmd)
	rootCmd.AddCommand(ruleAddCmd)
	rootCmd.AddCommand(ruleRemoveCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(revokeAllCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func setup(cmd *cobra.Command, args []string) {
	if err := config.InitConfig(envFlag); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	items := postgres.NewPostgresItemRepository(pg.DB)
	hierarchy := postgres.NewPostgresHierarchyRepository(pg.DB)
	rules := postgres.NewPostgresRuleRepository(pg.DB)
	assignments := postgres.NewPostgresAssignmentRepository(pg.DB)

	if cfg.Cache.Enabled {
		backend, err = newCacheBackend(cmd.Context(), &cfg.Cache)
		if err != nil {
			log.Fatalf("Failed to initialize cache backend: %v", err)
		}
		manager = authorization.NewManagerWithCache(
			items, hierarchy, rules, assignments,
			backend,
			cfg.Auth.CacheKey,
			time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		)
		// Tell long-running processes sharing the cache to drop their
		// resident snapshots when this tool mutates the graph
		watcher = infracache.NewGraphWatcher(pg.DB, cfg.Database.ConnectionString())
		manager.SetInvalidationHook(watcher.Broadcast)
	} else {
		manager = authorization.NewManager(items, hierarchy, rules, assignments)
	}
	manager.SetDefaultRoles(cfg.Auth.DefaultRoles)
}

func newCacheBackend(ctx context.Context, cfg *config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "redis":
		return rediscache.New(ctx, &rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.MaxMemoryBytes,
			EnableMetrics: cfg.Metrics,
		})
	}
}

func runAddItem(cmd *cobra.Command, args []string) {
	var item *entities.Item
	switch typeFlag {
	case "role":
		item = entities.NewRole(args[0])
	case "permission":
		item = entities.NewPermission(args[0])
	default:
		log.Fatalf("Unknown item type: %s (use role or permission)", typeFlag)
	}
	item.Description = descriptionFlag
	item.RuleName = ruleFlag

	if err := manager.AddItem(cmd.Context(), item); err != nil {
		log.Fatalf("Failed to add item: %v", err)
	}
	log.Printf("Added %s %s", typeFlag, item.Name)
}

func runRemoveItem(cmd *cobra.Command, args []string) {
	if err := manager.RemoveItem(cmd.Context(), args[0]); err != nil {
		log.Fatalf("Failed to remove item: %v", err)
	}
	log.Printf("Removed item %s", args[0])
}

func runListItems(cmd *cobra.Command, args []string) {
	roles, err := manager.GetRoles(cmd.Context())
	if err != nil {
		log.Fatalf("Failed to list roles: %v", err)
	}
	permissions, err := manager.GetPermissions(cmd.Context())
	if err != nil {
		log.Fatalf("Failed to list permissions: %v", err)
	}

	printItems("Roles", roles)
	printItems("Permissions", permissions)
}

func printItems(header string, items map[string]*entities.Item) {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%s (%d):\n", header, len(names))
	for _, name := range names {
		item := items[name]
		line := "  " + name
		if item.RuleName != "" {
			line += fmt.Sprintf(" [rule: %s]", item.RuleName)
		}
		if item.Description != "" {
			line += "  " + item.Description
		}
		fmt.Println(line)
	}
}

func runAddChild(cmd *cobra.Command, args []string) {
	if err := manager.AddChild(cmd.Context(), args[0], args[1]); err != nil {
		log.Fatalf("Failed to add child: %v", err)
	}
	log.Printf("Added edge %s -> %s", args[0], args[1])
}

func runRemoveChild(cmd *cobra.Command, args []string) {
	removed, err := manager.RemoveChild(cmd.Context(), args[0], args[1])
	if err != nil {
		log.Fatalf("Failed to remove child: %v", err)
	}
	if !removed {
		log.Printf("No edge %s -> %s", args[0], args[1])
		return
	}
	log.Printf("Removed edge %s -> %s", args[0], args[1])
}

func runAddRule(cmd *cobra.Command, args []string) {
	var ruleConfig json.RawMessage
	if configFlag != "" {
		if !json.Valid([]byte(configFlag)) {
			log.Fatalf("Rule config is not valid JSON: %s", configFlag)
		}
		ruleConfig = json.RawMessage(configFlag)
	}

	rule := entities.NewRule(args[0], args[1], ruleConfig)
	if err := manager.AddRule(cmd.Context(), rule); err != nil {
		log.Fatalf("Failed to add rule: %v", err)
	}
	log.Printf("Added rule %s (kind %s)", rule.Name, rule.Spec.Kind)
}

func runRemoveRule(cmd *cobra.Command, args []string) {
	if err := manager.RemoveRule(cmd.Context(), args[0]); err != nil {
		log.Fatalf("Failed to remove rule: %v", err)
	}
	log.Printf("Removed rule %s", args[0])
}

func runAssign(cmd *cobra.Command, args []string) {
	assignment, err := manager.Assign(cmd.Context(), args[0], args[1])
	if err != nil {
		log.Fatalf("Failed to assign: %v", err)
	}
	log.Printf("Assigned %s", assignment)
}

func runRevoke(cmd *cobra.Command, args []string) {
	revoked, err := manager.Revoke(cmd.Context(), args[0], args[1])
	if err != nil {
		log.Fatalf("Failed to revoke: %v", err)
	}
	if !revoked {
		log.Printf("User %s does not hold role %s", args[1], args[0])
		return
	}
	log.Printf("Revoked %s from %s", args[0], args[1])
}

func runRevokeAll(cmd *cobra.Command, args []string) {
	revoked, err := manager.RevokeAll(cmd.Context(), args[0])
	if err != nil {
		log.Fatalf("Failed to revoke: %v", err)
	}
	if !revoked {
		log.Printf("User %s holds no roles", args[0])
		return
	}
	log.Printf("Revoked all roles from %s", args[0])
}

func runCheck(cmd *cobra.Command, args []string) {
	var params map[string]interface{}
	if paramsFlag != "" {
		if err := json.Unmarshal([]byte(paramsFlag), &params); err != nil {
			log.Fatalf("Check params are not valid JSON: %v", err)
		}
	}

	allowed, err := manager.CheckAccess(cmd.Context(), args[0], args[1], params)
	if err != nil {
		log.Fatalf("Check failed: %v", err)
	}
	if allowed {
		fmt.Println("ALLOWED")
	} else {
		fmt.Println("DENIED")
	}
}

func runRoles(cmd *cobra.Command, args []string) {
	roles, err := manager.GetRolesByUser(cmd.Context(), args[0])
	if err != nil {
		log.Fatalf("Failed to list roles: %v", err)
	}
	printItems(fmt.Sprintf("Roles of %s", args[0]), roles)
}

func runPermissions(cmd *cobra.Command, args []string) {
	permissions, err := manager.GetPermissionsByUser(cmd.Context(), args[0])
	if err != nil {
		log.Fatalf("Failed to list permissions: %v", err)
	}
	printItems(fmt.Sprintf("Permissions of %s", args[0]), permissions)
}

func runServe(cmd *cobra.Command, args []string) {
	collector := metrics.NewCollector()
	if backend != nil {
		collector.SetCache(backend)
	}
	exporter := metrics.NewPrometheusExporter(collector)
	collector.SetObserver(exporter)
	manager.SetCollector(collector)

	// Receive side of the cross-process invalidation loop: drop the
	// resident snapshot whenever another process mutates the graph
	if watcher != nil {
		watcher.OnChange(manager.DropSnapshot)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to start graph watcher: %v", err)
		}
		defer watcher.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", metricsPortFlag),
		Handler: mux,
	}

	go func() {
		log.Printf("Serving metrics on :%d/metrics", metricsPortFlag)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			exporter.Update()
		case sig := <-sigChan:
			log.Printf("Received signal: %v", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Printf("Metrics server shutdown error: %v", err)
			}
			return
		}
	}
}
