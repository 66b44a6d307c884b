package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("debates")

		collection.Fields.Add(
			&core.TextField{
				Name: "topic",
			},
			&core.TextField{
				Name:     "topic_id",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"waiting", "active", "completed", "abandoned"},
			},
			&core.JSONField{
				Name:    "participants",
				MaxSize: 100_000,
			},
			&core.JSONField{
				Name:    "arguments",
				MaxSize: 2_000_000,
			},
			&core.JSONField{
				Name:    "turn_order",
				MaxSize: 10_000,
			},
			&core.TextField{
				Name: "current_turn",
			},
			&core.NumberField{
				Name:    "current_round",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "max_rounds",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "time_per_turn",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "expected_count",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:    "turn_deadline",
				OnlyInt: true,
			},
			&core.JSONField{
				Name:    "ratings",
				MaxSize: 10_000,
			},
			&core.JSONField{
				Name:    "rating_changes",
				MaxSize: 10_000,
			},
			&core.JSONField{
				Name:    "judgment",
				MaxSize: 200_000,
			},
			&core.TextField{
				Name: "ai_personality",
			},
			&core.SelectField{
				Name:      "end_reason",
				MaxSelect: 1,
				Values:    []string{"rounds_exhausted", "manual", "insufficient_arguments", "error"},
			},
			&core.TextField{
				Name: "abandoned_by",
			},
			&core.TextField{
				Name: "created_at",
			},
			&core.TextField{
				Name: "started_at",
			},
			&core.TextField{
				Name: "ended_at",
			},
			&core.NumberField{
				Name:    "version",
				OnlyInt: true,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_debates_status", false, "status", "")
		collection.AddIndex("idx_debates_topic", false, "topic_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("debates")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
