package kafka

import (
	"errors"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics creates missing topics and grows partition counts that are too small.
// Kafka cannot shrink partitions, so larger existing topics are left alone.
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, partitions int32, rf int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if rf <= 0 {
		rf = 1
	}
	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return errs.ErrBrokerUnavailable.WrapMsg(err, "describe topic", "topic", t)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     partitions,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					logger.Info("[Topic] exists (race)", zap.String("topic", t))
					continue
				}
				return errs.ErrBrokerUnavailable.WrapMsg(err, "create topic", "topic", t)
			}
			logger.Info("[Topic] created", zap.String("topic", t), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if partitions > cur {
			if err := admin.CreatePartitions(t, partitions, nil, false); err != nil {
				return errs.ErrBrokerUnavailable.WrapMsg(err, "expand partitions", "topic", t)
			}
			logger.Info("[Topic] partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", partitions))
		} else {
			logger.Debug("[Topic] exists", zap.String("topic", t), zap.Int32("partitions", cur))
		}
	}
	return nil
}

// EnsureTopicsFor dials a short-lived admin client and runs EnsureTopics.
func EnsureTopicsFor(c Config, topics []string) error {
	admin, err := sarama.NewClusterAdmin(c.Brokers, BuildConfig(c))
	if err != nil {
		return errs.ErrBrokerUnavailable.WrapMsg(err, "new cluster admin")
	}
	defer admin.Close()
	return EnsureTopics(admin, topics, c.Partitions, c.ReplicationFactor)
}

func strPtr(s string) *string { return &s }
