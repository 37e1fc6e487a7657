package main

import (
	"time"

	"regaudit/internal/ai"
	"regaudit/internal/cache"
	"regaudit/internal/config"
	"regaudit/internal/project"
)

func retryConfig(settings config.Settings) ai.RetryConfig {
	cfg := ai.DefaultRetryConfig()
	cfg.MaxRetries = settings.MaxRetries
	cfg.Timeout = time.Duration(settings.RequestTimeout)
	cfg.MaxConcurrentCalls = settings.MaxConcurrentCalls
	return cfg
}

func loadSettings() (config.Settings, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.Default(), nil
}

func loadRegistry() (*project.Registry, error) {
	path := registryPath
	if path == "" {
		path = project.DefaultRegistryPath()
	}
	return project.LoadRegistry(path)
}

func openCache(settings config.Settings) (*cache.ContentCache, error) {
	path := settings.CachePath
	if path == "" {
		path = cache.DefaultPath()
	}
	return cache.Open(path)
}
