// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every setting
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/myeventlane.log")
	viper.SetDefault("logging.fileoutput.level", "info")
	viper.SetDefault("logging.fileoutput.maxsize", 100)
	viper.SetDefault("logging.fileoutput.maxage", 30)
	viper.SetDefault("logging.fileoutput.maxrotatedfiles", 10)
	viper.SetDefault("logging.fileoutput.compress", false)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.slowthreshold", 200*time.Millisecond)
	viper.SetDefault("database.maxopenconns", 10)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.connmaxlifetime", time.Hour)
	viper.SetDefault("database.sqlite.path", "myeventlane.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.database", "myeventlane")

	viper.SetDefault("queue.backend", "database")
	viper.SetDefault("queue.concurrency", 2)
	viper.SetDefault("queue.jobtimeout", 30*time.Second)
	viper.SetDefault("queue.pollinterval", 2*time.Second)
	viper.SetDefault("queue.leaseduration", 5*time.Minute)
	viper.SetDefault("queue.memorybuffer", 1000)
	viper.SetDefault("queue.sqs.region", "ap-southeast-2")
	viper.SetDefault("queue.sqs.queueprefix", "myeventlane-")
	viper.SetDefault("queue.sqs.waittimeseconds", 10)
	viper.SetDefault("queue.sqs.visibilitytimeout", 60)
	viper.SetDefault("queue.nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("queue.nats.stream", "MYEVENTLANE")
	viper.SetDefault("queue.nats.ackwait", 60*time.Second)
	viper.SetDefault("queue.nats.maxdeliver", 5)
	viper.SetDefault("queue.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("queue.kafka.groupid", "myeventlane-workers")
	viper.SetDefault("queue.kafka.topicprefix", "myeventlane.")

	viper.SetDefault("mailer.transport", "log")
	viper.SetDefault("mailer.from", "no-reply@myeventlane.com")
	viper.SetDefault("mailer.fromname", "MyEventLane")
	viper.SetDefault("mailer.ratelimit", 5.0)
	viper.SetDefault("mailer.burst", 10)
	viper.SetDefault("mailer.timeout", 15*time.Second)
	viper.SetDefault("mailer.smtp.port", 587)
	viper.SetDefault("mailer.circuitbreaker.maxfailures", 5)
	viper.SetDefault("mailer.circuitbreaker.resettimeout", time.Minute)

	viper.SetDefault("automation.sitename", "MyEventLane")
	viper.SetDefault("automation.siteurl", "https://myeventlane.com")
	viper.SetDefault("automation.timezone", "Australia/Melbourne")
	viper.SetDefault("automation.digestweekday", "monday")
	viper.SetDefault("automation.digestlookahead", 7*24*time.Hour)
	viper.SetDefault("automation.exportlimit", 10)
	viper.SetDefault("automation.exportperiod", time.Hour)

	viper.SetDefault("ratelimit.backend", "database")
	viper.SetDefault("ratelimit.cleanupprobability", 0.01)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", ":9464")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.minpriority", "high")

	viper.SetDefault("audit.mqtt.enabled", false)
	viper.SetDefault("audit.mqtt.topic", "myeventlane/automation/audit")
	viper.SetDefault("audit.mqtt.clientid", "myeventlane-automation")
	viper.SetDefault("audit.mqtt.qos", 1)
}
